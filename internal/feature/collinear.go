package feature

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// CollinearPair flags two columns whose absolute Pearson correlation
// reaches the threshold. Flags are informational: the caller decides which
// column to exclude, the pipeline never drops one on its own.
type CollinearPair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Correlation float64 `json:"correlation"`
}

// FlagCollinear computes pairwise correlations over the given columns and
// returns the pairs at or above threshold, strongest first. Constant
// columns have undefined correlation and are skipped here; the
// standardizer reports them separately.
func FlagCollinear(t *Table, cols []string, threshold float64) ([]CollinearPair, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, eris.Errorf("feature: collinearity threshold must be in (0, 1] (got %g)", threshold)
	}
	if len(cols) == 0 {
		cols = t.Columns()
	}

	vals := make(map[string][]float64, len(cols))
	for _, c := range cols {
		v, err := t.Column(c)
		if err != nil {
			return nil, err
		}
		vals[c] = v
	}

	var pairs []CollinearPair
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			r := stat.Correlation(vals[cols[i]], vals[cols[j]], nil)
			if math.IsNaN(r) {
				continue
			}
			if math.Abs(r) >= threshold {
				pairs = append(pairs, CollinearPair{A: cols[i], B: cols[j], Correlation: r})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].Correlation), math.Abs(pairs[j].Correlation)
		if ai != aj {
			return ai > aj
		}
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})

	return pairs, nil
}
