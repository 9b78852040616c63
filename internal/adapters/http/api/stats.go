package api

import (
	"maps"
	"net/http"
)

// StatsProvider is anything that can report counters for /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler merges the counters of several providers into one document.
type StatsHandler struct {
	providers []StatsProvider
}

// NewStatsHandler creates a stats handler. On a key clash the later
// provider wins.
func NewStatsHandler(providers ...StatsProvider) *StatsHandler {
	return &StatsHandler{providers: providers}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := make(map[string]interface{})
	for _, p := range h.providers {
		if p == nil {
			continue
		}
		maps.Copy(stats, p.GetStats())
	}
	writeJSON(w, http.StatusOK, stats)
}
