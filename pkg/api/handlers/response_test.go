package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/gc"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("x: %w", blob.ErrNotFound), http.StatusNotFound},
		{"invalid id", blob.ErrInvalidID, http.StatusBadRequest},
		{"size mismatch", blob.ErrSizeMismatch, http.StatusBadRequest},
		{"digest mismatch", blob.ErrDigestMismatch, http.StatusBadRequest},
		{"too large", blob.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{"busy", blob.ErrBusy, http.StatusServiceUnavailable},
		{"invalid state", &blob.InvalidStateError{Op: "reset", From: blob.Used, To: blob.New}, http.StatusConflict},
		{"invalid phase", &gc.PhaseError{Op: "stop scan", Phase: gc.Idle, Want: []gc.Phase{gc.Scanning}}, http.StatusConflict},
		{"backend", &blob.BackendError{Op: "write", Backend: "s3", Err: fmt.Errorf("boom")}, http.StatusBadGateway},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError_BusySetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, blob.ErrBusy)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}
}
