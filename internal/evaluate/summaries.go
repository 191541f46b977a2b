// Package evaluate profiles cluster assignments: per-cluster descriptive
// statistics over the raw feature columns, spatial fragmentation against
// the contiguity structure, and side-by-side variant comparison.
package evaluate

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
)

// ColumnSummary is one feature column profiled within one cluster.
type ColumnSummary struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// ClusterSummary profiles one cluster of the assignment.
type ClusterSummary struct {
	Label   int             `json:"label"`
	Size    int             `json:"size"`
	Regions []string        `json:"regions"`
	Columns []ColumnSummary `json:"columns"`
}

// Summarize profiles each cluster over the raw feature table. Labels must
// be a complete assignment: every region labeled, every label in 1..k
// present. Statistics are computed on the unstandardized values so the
// profile reads in the columns' own units.
func Summarize(ft *feature.Table, labels []int) ([]ClusterSummary, error) {
	if len(labels) != ft.Len() {
		return nil, eris.Errorf("evaluate: %d labels for %d regions", len(labels), ft.Len())
	}
	k, err := checkComplete(labels)
	if err != nil {
		return nil, err
	}

	ids := ft.IDs()
	members := make([][]int, k+1)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	out := make([]ClusterSummary, 0, k)
	for label := 1; label <= k; label++ {
		idxs := members[label]
		cs := ClusterSummary{
			Label:   label,
			Size:    len(idxs),
			Regions: make([]string, len(idxs)),
		}
		for i, idx := range idxs {
			cs.Regions[i] = ids[idx]
		}
		for _, col := range ft.Columns() {
			vals, err := ft.Column(col)
			if err != nil {
				return nil, err
			}
			sub := make([]float64, len(idxs))
			for i, idx := range idxs {
				sub[i] = vals[idx]
			}
			cs.Columns = append(cs.Columns, summarizeColumn(col, sub))
		}
		out = append(out, cs)
	}
	return out, nil
}

func summarizeColumn(name string, vals []float64) ColumnSummary {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	sd := 0.0
	if len(vals) > 1 {
		sd = stat.StdDev(vals, nil)
	}
	return ColumnSummary{
		Column: name,
		Mean:   stat.Mean(vals, nil),
		Median: stat.Quantile(0.5, stat.LinInterp, sorted, nil),
		StdDev: sd,
	}
}

// checkComplete verifies labels form a 1..k assignment and returns k.
func checkComplete(labels []int) (int, error) {
	if len(labels) == 0 {
		return 0, eris.New("evaluate: empty assignment")
	}
	k := 0
	for i, l := range labels {
		if l < 1 {
			return 0, eris.Errorf("evaluate: region %d has invalid label %d", i, l)
		}
		if l > k {
			k = l
		}
	}
	present := make([]bool, k+1)
	for _, l := range labels {
		present[l] = true
	}
	for l := 1; l <= k; l++ {
		if !present[l] {
			return 0, eris.Errorf("evaluate: label %d of %d is empty", l, k)
		}
	}
	return k, nil
}
