package handlers

import (
	"errors"
	"net/http"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/gc"
)

// GCHandler exposes the collector.
type GCHandler struct {
	collector *gc.Collector
	scheduler *gc.Scheduler
}

// NewGCHandler creates a new collector handler. scheduler may be nil.
func NewGCHandler(collector *gc.Collector, scheduler *gc.Scheduler) *GCHandler {
	return &GCHandler{collector: collector, scheduler: scheduler}
}

// Run handles POST /gc. It runs one full cycle and returns its report, or
// with ?async=true hands the cycle to the scheduler and returns 202.
//
// Returns 409 Conflict when a run is already in progress.
func (h *GCHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		if h.scheduler == nil {
			Conflict(w, "no scheduler is running")
			return
		}
		h.scheduler.Trigger()
		writeJSON(w, http.StatusAccepted, okResponse(map[string]string{"phase": h.collector.Phase().String()}))
		return
	}

	rep, err := h.collector.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, gc.ErrInvalidPhase) {
			Conflict(w, err.Error())
			return
		}
		logger.WarnCtx(r.Context(), "GC: manual cycle failed", logger.Err(err))
		if rep != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponseWithData(rep, err.Error()))
			return
		}
		writeError(w, err)
		return
	}
	OK(w, rep)
}

// StatusResponse is the payload of GET /gc/status.
type StatusResponse struct {
	Phase   gc.Phase `json:"phase"`
	Run     *gc.Run  `json:"run,omitempty"`
	Runs    int      `json:"scheduled_runs,omitempty"`
	Failed  int      `json:"scheduled_failures,omitempty"`
	LastErr string   `json:"last_error,omitempty"`
}

// Status handles GET /gc/status.
func (h *GCHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Phase: h.collector.Phase()}
	if run, ok := h.collector.CurrentRun(); ok {
		resp.Run = &run
	}
	if h.scheduler != nil {
		var lastErr error
		resp.Runs, resp.Failed, lastErr = h.scheduler.Stats()
		if lastErr != nil {
			resp.LastErr = lastErr.Error()
		}
	}
	OK(w, resp)
}

// Last handles GET /gc/last.
func (h *GCHandler) Last(w http.ResponseWriter, r *http.Request) {
	rep := h.collector.LastReport()
	if rep == nil {
		NotFound(w, "no collection has completed yet")
		return
	}
	OK(w, rep)
}
