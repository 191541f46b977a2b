// Package attribute loads tabular indicator data keyed by region identifier.
package attribute

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is an immutable attribute table: a header and string-valued rows.
// Numeric interpretation happens at column extraction so that a single bad
// cell is reported with its position instead of surfacing later as NaN.
type Table struct {
	columns []string
	colIdx  map[string]int
	rows    [][]string
}

// NewTable builds a Table, validating header uniqueness and row widths.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, eris.New("attribute: table has no columns")
	}
	colIdx := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, eris.Errorf("attribute: column %d has empty name", i)
		}
		if prev, ok := colIdx[c]; ok {
			return nil, eris.Errorf("attribute: duplicate column %q (positions %d and %d)", c, prev, i)
		}
		colIdx[c] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, eris.Errorf("attribute: row %d has %d cells, header has %d", i, len(row), len(columns))
		}
	}
	return &Table{columns: columns, colIdx: colIdx, rows: rows}, nil
}

// Columns returns the header in file order.
func (t *Table) Columns() []string { return t.columns }

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// Column returns the raw string values of a column.
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.colIdx[name]
	if !ok {
		return nil, eris.Errorf("attribute: no column %q", name)
	}
	vals := make([]string, len(t.rows))
	for i, row := range t.rows {
		vals[i] = row[idx]
	}
	return vals, nil
}

// Cell returns a single value by row index and column name.
func (t *Table) Cell(row int, name string) (string, error) {
	idx, ok := t.colIdx[name]
	if !ok {
		return "", eris.Errorf("attribute: no column %q", name)
	}
	if row < 0 || row >= len(t.rows) {
		return "", eris.Errorf("attribute: row %d out of range (table has %d rows)", row, len(t.rows))
	}
	return t.rows[row][idx], nil
}

// NumericColumn parses an entire column as float64. Thousands separators
// are tolerated; any other non-numeric cell fails with its row number.
func (t *Table) NumericColumn(name string) ([]float64, error) {
	raw, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, len(raw))
	for i, s := range raw {
		v, err := parseNumeric(s)
		if err != nil {
			return nil, eris.Wrapf(err, "attribute: column %q row %d", name, i)
		}
		vals[i] = v
	}
	return vals, nil
}

// NumericColumns identifies which of the table's columns parse cleanly as
// numeric over every row.
func (t *Table) NumericColumns() []string {
	var numeric []string
	for _, c := range t.columns {
		if _, err := t.NumericColumn(c); err == nil {
			numeric = append(numeric, c)
		}
	}
	return numeric
}

func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, eris.New("empty cell")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("not numeric: %q", s)
	}
	return v, nil
}
