package api

import (
	"log"
	"net/http"

	"github.com/ringworld/server/internal/performance"
)

// StatsHandlers exposes the request profiler over HTTP.
type StatsHandlers struct {
	profiler *performance.Profiler
}

// NewStatsHandlers creates a new instance of StatsHandlers.
func NewStatsHandlers(profiler *performance.Profiler) *StatsHandlers {
	return &StatsHandlers{profiler: profiler}
}

// GetStats handles GET /api/stats requests.
// Returns timing and counter snapshots for the served pipeline stages.
func (h *StatsHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	data, err := h.profiler.JSON()
	if err != nil {
		log.Printf("Failed to encode profiler snapshot: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to encode stats")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write stats response: %v", err)
	}
}

// ResetStats handles POST /api/stats/reset requests.
func (h *StatsHandlers) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.profiler.Reset()
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
