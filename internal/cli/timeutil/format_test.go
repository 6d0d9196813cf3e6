package timeutil

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	tests := map[string]string{
		"15s":       "15s",
		"2m3s":      "2m 3s",
		"5h0m9s":    "5h 0m 9s",
		"72h30m15s": "3d 0h 30m 15s",
		"garbage":   "garbage",
	}
	for in, want := range tests {
		if got := FormatUptime(in); got != want {
			t.Errorf("FormatUptime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	want := ts.Local().Format(LocalTimeFormat)
	if got := FormatTime(ts.Format(time.RFC3339)); got != want {
		t.Errorf("FormatTime = %q, want %q", got, want)
	}
	if got := FormatTime("yesterday"); got != "yesterday" {
		t.Errorf("FormatTime kept %q", got)
	}
}

func TestSince(t *testing.T) {
	if got := Since(time.Time{}); got != "-" {
		t.Errorf("Since(zero) = %q", got)
	}
	if got := Since(time.Now().Add(-90 * time.Second)); got != "1m 30s" {
		t.Errorf("Since(90s ago) = %q", got)
	}
}
