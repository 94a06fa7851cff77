package xlsxutil

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Table is a plain columns/rows view of tabular data. Rows shorter
// than the column set leave the trailing cells blank.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Workbook renders the table into a single-sheet xlsx workbook with
// the column names as the first row.
func Workbook(sheet string, t Table) (*excelize.File, error) {
	f := excelize.NewFile()
	err := f.SetSheetName("Sheet1", sheet)
	if err != nil {
		return nil, err
	}

	for col, name := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		err = f.SetCellValue(sheet, cell, name)
		if err != nil {
			return nil, err
		}
	}

	for rowIdx, row := range t.Rows {
		if len(row) > len(t.Columns) {
			return nil, fmt.Errorf(
				"row %d has %d cells but there are only %d columns",
				rowIdx, len(row), len(t.Columns),
			)
		}
		for col, value := range row {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			err = f.SetCellValue(sheet, cell, value)
			if err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

// WriteTo renders the table and streams the workbook into w.
func WriteTo(w io.Writer, sheet string, t Table) error {
	f, err := Workbook(sheet, t)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
