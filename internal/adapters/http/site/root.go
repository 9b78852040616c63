// Package site serves the interactive upload page.
package site

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/okian/petal/internal/adapters/http/api"
	"github.com/okian/petal/internal/adapters/session"
	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
	"github.com/okian/petal/pkg/logger"
)

// SessionCookie names the cookie holding the session id.
const SessionCookie = "petal_session"

const (
	defaultPredictionRows = 30
	defaultMaxUpload      = 32 << 20
	multipartMemory       = 8 << 20
	pageTemplate          = "index.html"
)

// Dependencies required by the page handlers.
type Dependencies interface {
	Analyze(ctx context.Context, name string, r io.Reader) (*service.Outcome, error)
	SampleCSV() ([]byte, error)
	Schema() types.Schema
}

// Handler renders the upload page from explicit session state.
type Handler struct {
	deps           Dependencies
	sessions       *session.Store
	tmpl           *template.Template
	log            logger.Logger
	predictionRows int
	maxUploadBytes int64
	secureCookies  bool
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(deps Dependencies, sessions *session.Store, opts ...Option) (*Handler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		deps:           deps,
		sessions:       sessions,
		tmpl:           tmpl,
		predictionRows: defaultPredictionRows,
		maxUploadBytes: defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register attaches the page routes to mux.
func Register(_ context.Context, mux *http.ServeMux, h *Handler) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(FS())))
	mux.HandleFunc("/", api.MetricsMiddleware(h.HandleIndex, "index"))
	mux.HandleFunc("/start", api.MetricsMiddleware(h.HandleStart, "start"))
	mux.HandleFunc("/upload", api.MetricsMiddleware(h.HandleUpload, "upload"))
	mux.HandleFunc("/download/sample.csv", api.MetricsMiddleware(h.HandleSampleDownload, "download_sample"))
	mux.HandleFunc("/download/predictions.csv", api.MetricsMiddleware(h.HandlePredictionsDownload, "download_predictions"))
}

// tableView is a rendered slice of a table.
type tableView struct {
	Columns []string
	Rows    [][]string
	Shown   int
	Total   int
	Source  string
}

type validationView struct {
	Valid  bool
	Errors []string
}

type pageData struct {
	Schema       types.Schema
	Started      bool
	Info         string
	ReadError    string
	Preview      *tableView
	Validation   *validationView
	PredictError string
	Predictions  *tableView
}

// HandleIndex handles GET / and shows the last predictions of the session.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	st := h.state(w, r)
	data := h.page(st)
	if st.Started && st.Predictions == nil {
		data.Info = "Upload a CSV file to begin."
	}
	h.render(w, r, http.StatusOK, data)
}

// HandleStart handles POST /start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	st := h.state(w, r)
	st.Started = true
	h.sessions.Put(st)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleUpload handles POST /upload with a multipart "file" field.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	st := h.state(w, r)
	if !st.Started {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := h.page(st)
	data.Predictions = nil

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			data.ReadError = "could not read csv: file is too large"
			h.render(w, r, http.StatusRequestEntityTooLarge, data)
			return
		}
		data.Info = "Upload a CSV file to begin."
		h.render(w, r, http.StatusOK, data)
		return
	}
	defer func() { _ = file.Close() }()

	out, err := h.deps.Analyze(r.Context(), header.Filename, file)
	st.Predictions = nil
	st.FileName = header.Filename
	if out == nil {
		if err == nil || !errors.Is(err, table.ErrUnreadable) {
			h.logError(r, "upload failed", err)
		}
		data.ReadError = errorText(err)
		h.sessions.Put(st)
		h.render(w, r, http.StatusOK, data)
		return
	}

	data.Preview = &tableView{
		Columns: out.Preview.Header,
		Rows:    out.Preview.Records,
		Shown:   out.Preview.Len(),
		Total:   out.Rows,
		Source:  out.FileName,
	}
	data.Validation = &validationView{Valid: out.Validation.Valid, Errors: out.Validation.Errors}
	switch {
	case err != nil:
		h.logError(r, "prediction failed", err)
		data.PredictError = errorText(err)
	case out.Predictions != nil:
		st.Predictions = out.Predictions
		data.Predictions = h.predictionView(out.Predictions)
	}
	h.sessions.Put(st)
	h.render(w, r, http.StatusOK, data)
}

// HandleSampleDownload handles GET /download/sample.csv.
func (h *Handler) HandleSampleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	data, err := h.deps.SampleCSV()
	if err != nil {
		h.logError(r, "sample csv failed", err)
		http.Error(w, "could not build sample", http.StatusInternalServerError)
		return
	}
	attachment(w, types.SampleFileName, data)
}

// HandlePredictionsDownload handles GET /download/predictions.csv.
func (h *Handler) HandlePredictionsDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	st := h.state(w, r)
	if st.Predictions == nil {
		http.Error(w, "no predictions in this session", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := st.Predictions.WriteCSV(&buf); err != nil {
		h.logError(r, "predictions csv failed", err)
		http.Error(w, "could not write predictions", http.StatusInternalServerError)
		return
	}
	attachment(w, types.PredictionsFileName, buf.Bytes())
}

// state returns the caller's session, creating it and setting the cookie
// when missing or expired.
func (h *Handler) state(w http.ResponseWriter, r *http.Request) session.State {
	var st session.State
	found := false
	if c, err := r.Cookie(SessionCookie); err == nil {
		st, found = h.sessions.Get(c.Value)
	}
	if !found {
		st = h.sessions.New()
		h.sessions.Put(st)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    st.ID,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return st
}

func (h *Handler) page(st session.State) pageData {
	data := pageData{Schema: h.deps.Schema(), Started: st.Started}
	if st.Predictions != nil {
		data.Predictions = h.predictionView(st.Predictions)
		data.Predictions.Source = st.FileName
	}
	return data
}

func (h *Handler) predictionView(p *predict.Table) *tableView {
	head := p.Head(h.predictionRows)
	return &tableView{
		Columns: head.Columns(),
		Rows:    head.Records(),
		Shown:   head.Len(),
		Total:   p.Len(),
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, pageTemplate, data); err != nil {
		h.logError(r, "render failed", errors.Join(ErrRender, err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if h.log == nil {
		return
	}
	h.log.Error(r.Context(), msg,
		logger.String("path", r.URL.Path),
		logger.String("request_id", api.RequestID(r.Context())),
		logger.Error(err),
	)
}

func errorText(err error) string {
	if err == nil {
		return "could not read csv"
	}
	return err.Error()
}

func attachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
