package query

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TableSink persists a tabular result and returns where it was written.
type TableSink interface {
	WriteTable(fields []string, rows []Row) (string, error)
}

// CSVSink writes tabular results to a CSV file, replacing any previous result. Each write
// lands through a rename, so sessions sharing a Path never see a mixed file; the last
// display wins.
type CSVSink struct {
	Path string
}

// WriteTable writes a header row of fields followed by one line per row.
func (s *CSVSink) WriteTable(fields []string, rows []Row) (string, error) {
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("query: create %s: %w", dir, err)
		}
	}

	f, err := os.CreateTemp(dir, ".table-*.csv")
	if err != nil {
		return "", fmt.Errorf("query: create %s: %w", s.Path, err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(fields); err != nil {
		return "", fmt.Errorf("query: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.Strings()); err != nil {
			return "", fmt.Errorf("query: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("query: flush %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("query: close %s: %w", s.Path, err)
	}
	if err := os.Rename(f.Name(), s.Path); err != nil {
		return "", fmt.Errorf("query: replace %s: %w", s.Path, err)
	}
	return s.Path, nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderTable renders rows as a bordered terminal table.
func RenderTable(fields []string, rows []Row) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(fields...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		t.Row(r.Strings()...)
	}
	return t.Render()
}
