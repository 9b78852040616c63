// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Analyze validates an upload and predicts it when valid.
	Analyze(ctx context.Context, name string, r io.Reader) (*service.Outcome, error)

	// SampleCSV returns the downloadable template.
	SampleCSV() ([]byte, error)

	// Schema describes the upload contract.
	Schema() types.Schema
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	predictHandler   *PredictHandler
	sampleHandler    *SampleHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers. /stats merges the
// counters of every provider.
func NewServer(deps Dependencies, maxUploadBytes int64, stats ...StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(stats...),
		predictHandler:   NewPredictHandler(deps, maxUploadBytes),
		sampleHandler:    NewSampleHandler(deps),
		dashboardHandler: newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/v1/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "api_predict"))
	mux.HandleFunc("/api/v1/sample", MetricsMiddleware(s.sampleHandler.HandleSample, "api_sample"))
	mux.HandleFunc("/api/v1/schema", MetricsMiddleware(s.sampleHandler.HandleSchema, "api_schema"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	var kerr *KindError
	switch {
	case errors.As(err, &kerr):
		msg = kerr.Message()
	case err != nil:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
