package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/gc"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the blob backend be reached?
type HealthHandler struct {
	store     *blob.Store
	collector *gc.Collector
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
//
// store may be nil, in which case readiness returns unhealthy status.
func NewHealthHandler(store *blob.Store, collector *gc.Collector) *HealthHandler {
	return &HealthHandler{store: store, collector: collector, startedAt: time.Now()}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startedAt)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "dittobin",
		"started_at": h.startedAt.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// ReadinessResponse is the payload of a readiness probe.
type ReadinessResponse struct {
	Backend string `json:"backend"`
	Records int    `json:"records"`
	Latency string `json:"latency"`
	GCPhase string `json:"gc_phase,omitempty"`
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK when the backend answers its health check within 5s, 503
// Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := h.store.HealthCheck(ctx)
	resp := ReadinessResponse{
		Backend: h.store.Backend().Type(),
		Records: h.store.Len(),
		Latency: time.Since(start).String(),
	}
	if h.collector != nil {
		resp.GCPhase = h.collector.Phase().String()
	}

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(resp, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(resp))
}
