package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
	"github.com/marmos91/dittobin/pkg/gc"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}

	if data["service"] != "dittobin" {
		t.Errorf("Expected service 'dittobin', got '%s'", data["service"])
	}
	if _, ok := data["started_at"].(string); !ok {
		t.Errorf("Expected started_at in liveness data, got %v", data["started_at"])
	}
	if _, ok := data["uptime"].(string); !ok {
		t.Errorf("Expected uptime in liveness data, got %v", data["uptime"])
	}
}

func TestReadiness_NoStore_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "unhealthy" {
		t.Errorf("Expected status 'unhealthy', got '%s'", resp.Status)
	}

	if resp.Error != "store not initialized" {
		t.Errorf("Expected error 'store not initialized', got '%s'", resp.Error)
	}
}

func TestReadiness_WithStore_ReturnsOK(t *testing.T) {
	store := blob.NewStore(memory.New(), blob.Options{})
	defer func() { _ = store.Close() }()
	collector := gc.New(store, nil, gc.Options{})

	handler := NewHealthHandler(store, collector)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp struct {
		Status string            `json:"status"`
		Data   ReadinessResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Data.Backend != "memory" {
		t.Errorf("Expected backend 'memory', got '%s'", resp.Data.Backend)
	}
	if resp.Data.GCPhase != "idle" {
		t.Errorf("Expected gc phase 'idle', got '%s'", resp.Data.GCPhase)
	}
}

func TestReadiness_ClosedBackend_Returns503(t *testing.T) {
	store := blob.NewStore(memory.New(), blob.Options{})
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	handler := NewHealthHandler(store, nil)
	req := httptest.NewRequest("GET", "/health/ready", nil).WithContext(context.Background())
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "unhealthy" || resp.Error == "" {
		t.Errorf("Expected unhealthy with an error, got %+v", resp)
	}
}
