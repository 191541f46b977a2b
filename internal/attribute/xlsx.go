package attribute

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures XLSX loading. The first non-skipped row is the
// header.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // leading rows to discard before the header
}

// ReadXLSX loads an attribute table from a spreadsheet. Trailing blank
// rows are dropped; short rows are padded to header width because Excel
// omits trailing empty cells.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "attribute: open xlsx %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var header []string
	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		if header == nil {
			header = cells
			continue
		}
		if isBlankRow(cells) {
			continue
		}
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		if len(cells) > len(header) {
			return nil, eris.Errorf("attribute: xlsx row %d has %d cells, header has %d", i, len(cells), len(header))
		}
		rows = append(rows, cells)
	}

	if header == nil {
		return nil, eris.Errorf("attribute: xlsx sheet in %s has no header row", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("attribute: xlsx sheet in %s has a header but no rows", path)
	}

	return NewTable(header, rows)
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("attribute: xlsx sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("attribute: xlsx sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
