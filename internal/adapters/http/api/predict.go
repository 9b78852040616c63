package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/types"
)

const (
	multipartMemory = 8 << 20
	defaultFileName = "upload.csv"
)

// predictionRow is one row of the JSON prediction response.
type predictionRow struct {
	Probabilities  map[string]float64 `json:"probabilities"`
	PredictedClass string             `json:"predicted_class"`
}

type predictResponse struct {
	File        string          `json:"file"`
	Rows        int             `json:"rows"`
	Cached      bool            `json:"cached"`
	Classes     []string        `json:"classes"`
	Counts      map[string]int  `json:"counts"`
	Predictions []predictionRow `json:"predictions"`
}

type validationResponse struct {
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Errors         []string       `json:"errors"`
	MissingColumns []string       `json:"missing_columns,omitempty"`
	MissingCounts  map[string]int `json:"missing_counts,omitempty"`
}

// PredictHandler handles CSV prediction requests.
type PredictHandler struct {
	deps     Dependencies
	maxBytes int64
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies, maxBytes int64) *PredictHandler {
	return &PredictHandler{deps: deps, maxBytes: maxBytes}
}

// HandlePredict handles POST /api/v1/predict. The CSV is either the
// multipart field "file" or the raw request body. With ?format=csv the
// prediction table is returned as a download instead of JSON.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	}

	name, body, err := uploadFrom(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrTooLarge, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() { _ = body.Close() }()

	out, err := h.deps.Analyze(r.Context(), name, body)
	if err != nil {
		status, code, kerr := classify(op, err)
		writeError(w, status, code, kerr)
		return
	}

	if !out.Validation.Valid {
		msg := ErrValidation.Error()
		if len(out.Validation.Errors) > 0 {
			msg = out.Validation.Errors[0]
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Code:           "validation_failed",
			Message:        msg,
			Errors:         out.Validation.Errors,
			MissingColumns: out.Validation.Missing,
			MissingCounts:  out.Validation.NonNumeric,
		})
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := out.Predictions.WriteCSV(&buf); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrPrediction, err))
			return
		}
		writeCSV(w, types.PredictionsFileName, buf.Bytes())
		return
	}

	writeJSON(w, http.StatusOK, toPredictResponse(out))
}

func toPredictResponse(out *service.Outcome) predictResponse {
	p := out.Predictions
	resp := predictResponse{
		File:        out.FileName,
		Rows:        p.Len(),
		Cached:      out.Cached,
		Classes:     p.Classes,
		Counts:      make(map[string]int, len(p.Classes)),
		Predictions: make([]predictionRow, p.Len()),
	}
	for i, n := range p.Counts() {
		resp.Counts[p.Classes[i]] = n
	}
	for i, row := range p.Probabilities {
		probs := make(map[string]float64, len(row))
		for c, v := range row {
			probs[p.Classes[c]] = v
		}
		resp.Predictions[i] = predictionRow{Probabilities: probs, PredictedClass: p.Predicted[i]}
	}
	return resp
}

// uploadFrom returns the uploaded file name and contents.
func uploadFrom(r *http.Request) (string, io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return defaultFileName, r.Body, nil
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	name := header.Filename
	if name == "" {
		name = defaultFileName
	}
	return name, file, nil
}
