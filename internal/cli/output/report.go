package output

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/dittobin/pkg/gc"
)

// SourceTable renders the per-source lines of a collection report.
type SourceTable []gc.SourceReport

func (s SourceTable) Headers() []string {
	return []string{"Source", "Nodes", "Reachable", "Touched", "Unknown", "Invalid", "Errors", "Duration", "Status"}
}

func (s SourceTable) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, src := range s {
		status := "ok"
		if src.Failed() {
			status = src.Err
		}
		rows = append(rows, []string{
			src.Name,
			humanize.Comma(int64(src.Nodes)),
			humanize.Comma(int64(src.Reachable)),
			humanize.Comma(int64(src.Touched)),
			humanize.Comma(int64(src.Unknown)),
			strconv.Itoa(src.Invalid),
			strconv.Itoa(src.Errors),
			src.Duration.Round(time.Millisecond).String(),
			status,
		})
	}
	return rows
}

// ReportSummary returns the headline figures of a collection report.
func ReportSummary(r *gc.Report) [][2]string {
	result := "complete"
	if r.Aborted {
		result = "aborted"
	}
	return [][2]string{
		{"Run", r.RunID},
		{"Result", result},
		{"Started", r.StartedAt.Local().Format(time.DateTime)},
		{"Duration", r.Duration().Round(time.Millisecond).String()},
		{"Scan passes", strconv.Itoa(r.ScanPasses)},
		{"Blobs before", humanize.Comma(r.InitialCount) + " (" + humanize.IBytes(nonNegative(r.InitialSizeBytes)) + ")"},
		{"Blobs after", humanize.Comma(r.CurrentCount) + " (" + humanize.IBytes(nonNegative(r.CurrentSizeBytes)) + ")"},
		{"Cleaned", humanize.Comma(int64(r.Cleaned))},
		{"Reclaimed", humanize.IBytes(r.BytesReclaimed)},
		{"Delete errors", strconv.Itoa(r.DeleteErrors)},
		{"Scan errors", strconv.Itoa(r.ScanErrors)},
		{"Protocol violations", strconv.Itoa(r.ProtocolViolations)},
		{"Removed records", strconv.Itoa(r.Removed)},
	}
}

// PrintReport writes a collection report in format.
func PrintReport(w io.Writer, format Format, r *gc.Report) error {
	if format != FormatTable {
		return Print(w, format, r)
	}
	if err := PrintKeyValues(w, ReportSummary(r)); err != nil {
		return err
	}
	if len(r.Sources) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return PrintTable(w, SourceTable(r.Sources))
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
