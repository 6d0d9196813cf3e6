package output

import (
	"github.com/dustin/go-humanize"

	"github.com/marmos91/dittobin/internal/cli/timeutil"
	"github.com/marmos91/dittobin/pkg/blob"
)

// RecordTable renders blob records.
type RecordTable []blob.RecordInfo

func (r RecordTable) Headers() []string {
	return []string{"ID", "Size", "State", "Modified", "Error"}
}

func (r RecordTable) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, rec := range r {
		rows = append(rows, []string{
			rec.ID.String(),
			humanize.IBytes(rec.Length),
			rec.State.String(),
			timeutil.Since(rec.LastModified),
			rec.Err,
		})
	}
	return rows
}
