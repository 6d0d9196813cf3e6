package gc

import "time"

// SourceReport summarizes the enumeration of one Source during a scan.
type SourceReport struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`

	// Nodes is the number of nodes read without error.
	Nodes int `json:"nodes"`

	// Touched counts nodes whose record moved back to Used; Reachable
	// counts nodes whose record exists, touched or already in use.
	Touched   int `json:"touched"`
	Reachable int `json:"reachable"`

	// Unknown counts identifiers with no registered record.
	Unknown int `json:"unknown"`

	// Invalid counts node values that are not a usable identifier.
	Invalid int `json:"invalid"`

	// Errors counts unreadable nodes.
	Errors int `json:"errors"`

	// Err is set when the source failed as a whole.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the enumeration of the source was cut short.
func (r SourceReport) Failed() bool { return r.Err != "" }

// ScanReport is returned by every Scan call.
type ScanReport struct {
	RunID string `json:"run_id"`

	// Pass is 1 for the scan that opened the run.
	Pass     int            `json:"pass"`
	Duration time.Duration  `json:"duration"`
	Sources  []SourceReport `json:"sources"`

	// Records is the number of registry entries visited by the opening pass.
	Records int `json:"records"`

	// Removed counts Deleted or InError records dropped from the registry.
	Removed int `json:"removed"`

	// ProtocolViolations counts records the opening pass found in a state
	// that a finished run never leaves behind.
	ProtocolViolations int `json:"protocol_violations"`
}

// Report describes a completed run.
type Report struct {
	RunID      string    `json:"run_id"`
	Properties []string  `json:"properties"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	SweptAt    time.Time `json:"swept_at"`

	InitialCount     int64 `json:"initial_count"`
	InitialSizeBytes int64 `json:"initial_size_bytes"`

	ScanPasses    int            `json:"scan_passes"`
	ScanDuration  time.Duration  `json:"scan_duration"`
	SweepDuration time.Duration  `json:"sweep_duration"`
	Sources       []SourceReport `json:"sources"`

	// ScanErrors totals unreadable nodes, invalid identifiers and failed
	// sources over every pass.
	ScanErrors         int `json:"scan_errors"`
	ProtocolViolations int `json:"protocol_violations"`
	Removed            int `json:"removed"`

	Cleaned        int    `json:"cleaned"`
	DeleteErrors   int    `json:"delete_errors"`
	BytesReclaimed uint64 `json:"bytes_reclaimed"`

	CurrentCount     int64 `json:"current_count"`
	CurrentSizeBytes int64 `json:"current_size_bytes"`

	// Aborted is set when the sweep stopped early because its context was
	// canceled.
	Aborted bool `json:"aborted,omitempty"`
}

// Duration is the wall-clock time from the first scan to the end of the
// sweep.
func (r *Report) Duration() time.Duration {
	if r.SweptAt.IsZero() {
		return 0
	}
	return r.SweptAt.Sub(r.StartedAt)
}

func (r *Report) clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Properties = append([]string(nil), r.Properties...)
	c.Sources = append([]SourceReport(nil), r.Sources...)
	return &c
}

// Run is the state of the collection run in progress.
type Run struct {
	ID               string    `json:"id"`
	Phase            Phase     `json:"phase"`
	StartedAt        time.Time `json:"started_at"`
	StoppedAt        time.Time `json:"stopped_at,omitzero"`
	InitialCount     int64     `json:"initial_count"`
	InitialSizeBytes int64     `json:"initial_size_bytes"`
	Properties       []string  `json:"properties"`
}
