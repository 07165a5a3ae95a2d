package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/platform/cache"
)

var startTime = time.Now()

// StatsSource reports occupancy for one named cache.
type StatsSource interface {
	Stats() cache.Stats
}

// HealthHandlers reports process liveness and component statistics.
type HealthHandlers struct {
	caches  map[string]StatsSource
	batcher *analytics.Batcher
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(caches map[string]StatsSource, batcher *analytics.Batcher) *HealthHandlers {
	return &HealthHandlers{caches: caches, batcher: batcher}
}

// Routes registers health endpoints at the router root.
func (h *HealthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/healthz", h.healthz)
}

func (h *HealthHandlers) healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	caches := make(map[string]any, len(h.caches))
	for name, source := range h.caches {
		if source == nil {
			continue
		}
		stats := source.Stats()
		caches[name] = map[string]any{
			"size":    stats.Size,
			"maxSize": stats.MaxSize,
			"hitRate": stats.HitRate,
		}
	}
	if len(caches) > 0 {
		payload["caches"] = caches
	}
	if h.batcher != nil {
		payload["eventQueueDepth"] = h.batcher.QueueDepth()
	}

	writeJSONResponse(w, http.StatusOK, payload)
}
