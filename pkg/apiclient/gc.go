package apiclient

import (
	"context"

	"github.com/marmos91/dittobin/pkg/gc"
)

// GCStatus is the payload of GET /gc/status.
type GCStatus struct {
	Phase   gc.Phase `json:"phase"`
	Run     *gc.Run  `json:"run,omitempty"`
	Runs    int      `json:"scheduled_runs,omitempty"`
	Failed  int      `json:"scheduled_failures,omitempty"`
	LastErr string   `json:"last_error,omitempty"`
}

// RunGC runs one collection cycle on the server and returns its report.
// A cycle that fails after scanning returns its partial report alongside
// the error.
func (c *Client) RunGC(ctx context.Context) (*gc.Report, error) {
	var rep gc.Report
	err := c.post(ctx, "/gc", &rep)
	if err == nil {
		return &rep, nil
	}
	if apiErr, ok := AsAPIError(err); ok && apiErr.DecodeData(&rep) == nil {
		return &rep, err
	}
	return nil, err
}

// TriggerGC queues a cycle on the server's scheduler and returns the phase
// the collector was in.
func (c *Client) TriggerGC(ctx context.Context) (gc.Phase, error) {
	var resp struct {
		Phase gc.Phase `json:"phase"`
	}
	if err := c.post(ctx, "/gc?async=true", &resp); err != nil {
		return gc.Idle, err
	}
	return resp.Phase, nil
}

// GCStatus returns the collector phase and scheduler counters.
func (c *Client) GCStatus(ctx context.Context) (*GCStatus, error) {
	var st GCStatus
	if err := c.get(ctx, "/gc/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// LastGCReport returns the report of the last completed cycle. The error
// is an *APIError with IsNotFound set when no cycle has completed.
func (c *Client) LastGCReport(ctx context.Context) (*gc.Report, error) {
	var rep gc.Report
	if err := c.get(ctx, "/gc/last", &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
