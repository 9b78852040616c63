package api

import (
	"net/http"

	"github.com/okian/petal/internal/domain/types"
)

// SampleHandler serves the upload template and contract.
type SampleHandler struct {
	deps Dependencies
}

// NewSampleHandler creates a new sample handler.
func NewSampleHandler(deps Dependencies) *SampleHandler {
	return &SampleHandler{deps: deps}
}

// HandleSample handles GET /api/v1/sample.
func (h *SampleHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	const op = "api.sample"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	data, err := h.deps.SampleCSV()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrServe, err))
		return
	}
	writeCSV(w, types.SampleFileName, data)
}

// HandleSchema handles GET /api/v1/schema.
func (h *SampleHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Schema())
}
