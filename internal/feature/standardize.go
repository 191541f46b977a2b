package feature

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mode selects the standardization transform.
type Mode string

const (
	// ModeMinMax maps each column linearly onto [0, 1].
	ModeMinMax Mode = "minmax"
	// ModeZScore centers each column to mean 0 and unit variance.
	ModeZScore Mode = "zscore"
)

// ParseMode validates a standardization mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMinMax, ModeZScore:
		return Mode(s), nil
	default:
		return "", eris.Errorf("feature: unknown standardization mode %q (use minmax or zscore)", s)
	}
}

// Dropped records a zero-variance column excluded during standardization.
// The exclusion is fatal for the column, not for the run.
type Dropped struct {
	Column string  `json:"column"`
	Value  float64 `json:"value"` // the constant value every row held
}

// Matrix is the Stage 2 output: the standardized feature matrix with fixed
// row (region) and column (variable) order. It is treated as read-only by
// every downstream stage.
type Matrix struct {
	ids     []string
	columns []string
	rows    [][]float64
}

// Standardize rescales the chosen columns and materializes the feature
// matrix. Zero-variance columns are excluded and reported rather than
// producing NaN; an empty resulting column set is fatal.
func Standardize(t *Table, cols []string, mode Mode) (*Matrix, []Dropped, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		cols = t.Columns()
	}
	if len(cols) == 0 {
		return nil, nil, eris.New("feature: no columns to standardize")
	}

	n := t.Len()
	var kept []string
	var dropped []Dropped
	keptVals := make([][]float64, 0, len(cols))

	for _, c := range cols {
		raw, err := t.Column(c)
		if err != nil {
			return nil, nil, err
		}

		std, constant := standardizeColumn(raw, mode)
		if constant {
			dropped = append(dropped, Dropped{Column: c, Value: raw[0]})
			zap.L().Warn("feature: excluding zero-variance column",
				zap.String("column", c),
				zap.Float64("value", raw[0]),
			)
			continue
		}
		kept = append(kept, c)
		keptVals = append(keptVals, std)
	}

	if len(kept) == 0 {
		return nil, dropped, eris.Errorf("feature: all %d columns have zero variance, nothing to cluster on", len(cols))
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, len(kept))
		for j := range kept {
			rows[i][j] = keptVals[j][i]
		}
	}

	return &Matrix{ids: t.IDs(), columns: kept, rows: rows}, dropped, nil
}

// standardizeColumn transforms one column, reporting constant columns
// instead of dividing by zero.
func standardizeColumn(raw []float64, mode Mode) (std []float64, constant bool) {
	switch mode {
	case ModeZScore:
		mean := stat.Mean(raw, nil)
		sd := stat.StdDev(raw, nil)
		if sd == 0 {
			return nil, true
		}
		std = make([]float64, len(raw))
		for i, v := range raw {
			std[i] = (v - mean) / sd
		}
		return std, false
	default: // ModeMinMax
		lo, hi := floats.Min(raw), floats.Max(raw)
		if hi == lo {
			return nil, true
		}
		std = make([]float64, len(raw))
		for i, v := range raw {
			std[i] = (v - lo) / (hi - lo)
		}
		return std, false
	}
}

// NewMatrix builds a Matrix directly from rows. Used by tests and by
// callers that bypass the table builder.
func NewMatrix(ids []string, columns []string, rows [][]float64) (*Matrix, error) {
	if len(ids) != len(rows) {
		return nil, eris.Errorf("feature: %d ids but %d rows", len(ids), len(rows))
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, eris.Errorf("feature: row %d has %d values, expected %d", i, len(r), len(columns))
		}
	}
	return &Matrix{ids: ids, columns: columns, rows: rows}, nil
}

// Len returns the number of regions (rows).
func (m *Matrix) Len() int { return len(m.rows) }

// NumFeatures returns the number of standardized variables.
func (m *Matrix) NumFeatures() int { return len(m.columns) }

// IDs returns region ids in row order.
func (m *Matrix) IDs() []string { return m.ids }

// Columns returns the retained variable names in order.
func (m *Matrix) Columns() []string { return m.columns }

// Row returns the feature vector of region i.
func (m *Matrix) Row(i int) []float64 { return m.rows[i] }

// Rows returns all feature vectors in region order.
func (m *Matrix) Rows() [][]float64 { return m.rows }

// Column returns the standardized values of one variable.
func (m *Matrix) Column(name string) ([]float64, error) {
	for j, c := range m.columns {
		if c == name {
			col := make([]float64, len(m.rows))
			for i := range m.rows {
				col[i] = m.rows[i][j]
			}
			return col, nil
		}
	}
	return nil, eris.Errorf("feature: matrix has no column %q", name)
}
