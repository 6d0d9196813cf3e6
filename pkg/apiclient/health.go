package apiclient

import (
	"context"
)

// Liveness is the payload of GET /health.
type Liveness struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_sec"`
}

// Readiness is the payload of GET /health/ready.
type Readiness struct {
	Backend string `json:"backend"`
	Records int    `json:"records"`
	Latency string `json:"latency"`
	GCPhase string `json:"gc_phase,omitempty"`
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) (*Liveness, error) {
	var live Liveness
	if err := c.get(ctx, "/health", &live); err != nil {
		return nil, err
	}
	return &live, nil
}

// Ready calls the readiness probe. When the backend is unhealthy the
// returned error is an *APIError and the readiness payload is still
// returned when the server sent one.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var ready Readiness
	err := c.get(ctx, "/health/ready", &ready)
	if err == nil {
		return &ready, nil
	}
	if apiErr, ok := AsAPIError(err); ok && apiErr.IsUnavailable() {
		if apiErr.DecodeData(&ready) == nil {
			return &ready, err
		}
	}
	return nil, err
}
