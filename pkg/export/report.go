// Package export renders tabular reports as CSV or PDF downloads.
package export

import (
	"fmt"
	"strings"
	"time"
)

// Report is an ordered table with a title. Every row must have one cell per column.
type Report struct {
	Title       string
	Columns     []string
	Rows        [][]string
	GeneratedAt time.Time
}

func (r Report) validate() error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("report %q has no columns", r.Title)
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("report %q row %d has %d cells, want %d", r.Title, i, len(row), len(r.Columns))
		}
	}
	return nil
}

// Renderer encodes a report in one file format.
type Renderer interface {
	Render(report Report) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat resolves a renderer by name ("csv" or "pdf").
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return NewCSVRenderer(), nil
	case "pdf":
		return NewPDFRenderer(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename builds a download name such as "ledger-discrepancies-20240304.csv".
func Filename(base string, at time.Time, r Renderer) string {
	return fmt.Sprintf("%s-%s.%s", base, at.UTC().Format("20060102"), r.Extension())
}
