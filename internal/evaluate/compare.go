package evaluate

import (
	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// Variant is one named assignment to score.
type Variant struct {
	Name   string
	Labels []int
}

// VariantScore lines a variant up against the others on shared metrics.
// WithinSSD is the pooled within-cluster sum of squared deviations in the
// standardized attribute space; lower is tighter. Fragmentation counts
// map pieces beyond one per cluster; zero means fully contiguous.
type VariantScore struct {
	Variant       string  `json:"variant"`
	K             int     `json:"k"`
	WithinSSD     float64 `json:"within_ssd"`
	Fragmentation int     `json:"fragmentation"`
}

// Compare scores each variant on the same features and contiguity
// structure, in input order.
func Compare(fm *feature.Matrix, nb *weights.Neighborhood, variants []Variant) ([]VariantScore, error) {
	if len(variants) == 0 {
		return nil, eris.New("evaluate: no variants to compare")
	}
	out := make([]VariantScore, 0, len(variants))
	for _, v := range variants {
		if len(v.Labels) != fm.Len() {
			return nil, eris.Errorf("evaluate: variant %q has %d labels for %d regions", v.Name, len(v.Labels), fm.Len())
		}
		k, err := checkComplete(v.Labels)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: variant %q", v.Name)
		}
		frag, err := Fragmentation(v.Labels, nb)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: variant %q", v.Name)
		}
		out = append(out, VariantScore{
			Variant:       v.Name,
			K:             k,
			WithinSSD:     withinSSD(fm, v.Labels, k),
			Fragmentation: frag.Total,
		})
	}
	return out, nil
}

// withinSSD pools per-cluster squared deviations from the cluster mean
// across all feature columns.
func withinSSD(fm *feature.Matrix, labels []int, k int) float64 {
	dim := fm.NumFeatures()
	size := make([]int, k+1)
	sum := make([][]float64, k+1)
	for l := 1; l <= k; l++ {
		sum[l] = make([]float64, dim)
	}
	for i := 0; i < fm.Len(); i++ {
		l := labels[i]
		size[l]++
		for c, v := range fm.Row(i) {
			sum[l][c] += v
		}
	}

	total := 0.0
	for i := 0; i < fm.Len(); i++ {
		l := labels[i]
		for c, v := range fm.Row(i) {
			dev := v - sum[l][c]/float64(size[l])
			total += dev * dev
		}
	}
	return total
}
