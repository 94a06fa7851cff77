package listings

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"carsheet-backend/lib/xlsxutil"
)

// ErrNoEntries is returned when an export is requested but the table
// has no rows to write. Presentation layers surface it as a message,
// never a crash.
var ErrNoEntries = errors.New("no entries to export")

const ExportSheet = "Listings"

type ExportOptions struct {
	// drop rows whose full cell set duplicates an earlier row
	DropDuplicates bool
	// drop rows where every cell is blank
	DropEmptyRows bool
}

// Table projects the session onto the full column union: one row per
// entry in session order, one column per distinct field name, blank
// cells where an entry lacks a field.
func (s *Session) Table(opts ExportOptions) (xlsxutil.Table, error) {
	if len(s.Entries) == 0 {
		return xlsxutil.Table{}, ErrNoEntries
	}

	columns := s.Columns()
	seen := map[string]struct{}{}
	var rows [][]string

	for _, entry := range s.Entries {
		row := make([]string, len(columns))
		empty := true
		for i, column := range columns {
			row[i] = entry.Field(column)
			if row[i] != "" {
				empty = false
			}
		}

		if opts.DropEmptyRows && empty {
			continue
		}
		if opts.DropDuplicates {
			key := strings.Join(row, "\x1f")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return xlsxutil.Table{}, ErrNoEntries
	}
	return xlsxutil.Table{Columns: columns, Rows: rows}, nil
}

// Export writes the session as a single-sheet xlsx workbook.
func (s *Session) Export(w io.Writer, opts ExportOptions) error {
	table, err := s.Table(opts)
	if err != nil {
		return err
	}
	return xlsxutil.WriteTo(w, ExportSheet, table)
}

// ExportFilename is the default timestamped name for a downloaded
// workbook.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("carsheet_data_%s.xlsx", now.Format("20060102_1504"))
}
