// Package cluster implements the clustering engine: hierarchical
// agglomeration over a dissimilarity matrix, gap-statistic selection of the
// cluster count, spatially constrained partitioning of a spanning forest,
// and attribute/geography blended clustering.
package cluster

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// DistanceMatrix is the read surface the engine needs from a pairwise
// dissimilarity structure. Implementations must be symmetric with a zero
// diagonal.
type DistanceMatrix interface {
	Len() int
	At(i, j int) float64
}

// Linkage selects the inter-cluster dissimilarity update rule.
type Linkage string

const (
	Ward     Linkage = "ward"
	Single   Linkage = "single"
	Complete Linkage = "complete"
	Average  Linkage = "average"
)

// Linkages lists the supported rules in display order.
func Linkages() []Linkage {
	return []Linkage{Ward, Single, Complete, Average}
}

// ParseLinkage maps a config-surface name to a Linkage.
func ParseLinkage(name string) (Linkage, error) {
	switch Linkage(name) {
	case Ward, Single, Complete, Average:
		return Linkage(name), nil
	default:
		return "", eris.Errorf("cluster: unknown linkage %q (use ward, single, complete, or average)", name)
	}
}

// update applies the Lance-Williams recurrence for the merged cluster
// (i u j) against cluster k. Ward operates on squared dissimilarities;
// Agglomerate squares and unsquares around it.
func (l Linkage) update(dik, djk, dij, ni, nj, nk float64) float64 {
	switch l {
	case Single:
		return math.Min(dik, djk)
	case Complete:
		return math.Max(dik, djk)
	case Average:
		return (ni*dik + nj*djk) / (ni + nj)
	default: // Ward
		t := ni + nj + nk
		return ((ni+nk)*dik + (nj+nk)*djk - nk*dij) / t
	}
}

// Merge is one agglomeration step. A and B are cluster ids: leaves are
// 0..N-1 and step t creates cluster N+t. A < B always holds.
type Merge struct {
	A, B   int
	Height float64
	Size   int
}

// Dendrogram is the full agglomeration history over N regions.
type Dendrogram struct {
	n       int
	linkage Linkage
	merges  []Merge
}

// Agglomerate clusters the matrix bottom-up under the given linkage. Ties
// on the minimum dissimilarity resolve to the first pair in scan order, so
// equal inputs yield equal trees.
func Agglomerate(d DistanceMatrix, linkage Linkage) (*Dendrogram, error) {
	if _, err := ParseLinkage(string(linkage)); err != nil {
		return nil, err
	}
	n := d.Len()
	if n < 2 {
		return nil, eris.Errorf("cluster: need at least 2 regions to agglomerate, got %d", n)
	}

	// working copy, squared for ward
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		for j := range w[i] {
			v := d.At(i, j)
			if linkage == Ward {
				v *= v
			}
			w[i][j] = v
		}
	}

	active := make([]bool, n)
	cluster := make([]int, n) // cluster id occupying each slot
	size := make([]float64, n)
	for i := range active {
		active[i] = true
		cluster[i] = i
		size[i] = 1
	}

	dg := &Dendrogram{n: n, linkage: linkage, merges: make([]Merge, 0, n-1)}
	for t := 0; t < n-1; t++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if w[i][j] < best {
					best = w[i][j]
					bi, bj = i, j
				}
			}
		}

		h := best
		if linkage == Ward {
			h = math.Sqrt(math.Max(0, best))
		}
		a, b := cluster[bi], cluster[bj]
		if a > b {
			a, b = b, a
		}
		dg.merges = append(dg.merges, Merge{
			A:      a,
			B:      b,
			Height: h,
			Size:   int(size[bi] + size[bj]),
		})

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			v := linkage.update(w[bi][k], w[bj][k], w[bi][bj], size[bi], size[bj], size[k])
			w[bi][k] = v
			w[k][bi] = v
		}
		active[bj] = false
		cluster[bi] = n + t
		size[bi] += size[bj]
	}
	return dg, nil
}

// Len returns the number of regions the tree was built over.
func (dg *Dendrogram) Len() int { return dg.n }

// Linkage returns the rule the tree was built with.
func (dg *Dendrogram) Linkage() Linkage { return dg.linkage }

// Merges returns the agglomeration steps in order.
func (dg *Dendrogram) Merges() []Merge { return dg.merges }

// Heights returns the merge heights in agglomeration order.
func (dg *Dendrogram) Heights() []float64 {
	hs := make([]float64, len(dg.merges))
	for i, m := range dg.merges {
		hs[i] = m.Height
	}
	return hs
}

// Cut slices the tree into k clusters. Labels run 1..k and are numbered by
// first appearance in region order, so the labeling is stable. k must lie
// in [2, N]; k == N yields singletons.
func (dg *Dendrogram) Cut(k int) ([]int, error) {
	if k < 2 {
		return nil, eris.Errorf("cluster: k must be at least 2, got %d", k)
	}
	if k > dg.n {
		return nil, eris.Errorf("cluster: k=%d exceeds the region count %d", k, dg.n)
	}

	members := make(map[int][]int, dg.n)
	for i := 0; i < dg.n; i++ {
		members[i] = []int{i}
	}
	for t := 0; t < dg.n-k; t++ {
		m := dg.merges[t]
		merged := append(members[m.A], members[m.B]...)
		delete(members, m.A)
		delete(members, m.B)
		members[dg.n+t] = merged
	}

	// order clusters by their earliest region
	type grp struct {
		min  int
		idxs []int
	}
	groups := make([]grp, 0, k)
	for _, idxs := range members {
		lo := idxs[0]
		for _, i := range idxs {
			if i < lo {
				lo = i
			}
		}
		groups = append(groups, grp{min: lo, idxs: idxs})
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].min < groups[b].min })

	labels := make([]int, dg.n)
	for g, group := range groups {
		for _, i := range group.idxs {
			labels[i] = g + 1
		}
	}
	return labels, nil
}

// Coefficient returns the agglomerative coefficient: the mean over regions
// of 1 - h_first/h_final, where h_first is the height at which the region
// first merges. Values near 1 indicate strong clustering structure. A tree
// whose final height is zero scores 0.
func (dg *Dendrogram) Coefficient() float64 {
	hmax := dg.merges[len(dg.merges)-1].Height
	if hmax == 0 {
		return 0
	}
	total := 0.0
	for _, m := range dg.merges {
		if m.A < dg.n {
			total += 1 - m.Height/hmax
		}
		if m.B < dg.n {
			total += 1 - m.Height/hmax
		}
	}
	return total / float64(dg.n)
}

// LinkageCoefficient pairs a linkage with its agglomerative coefficient on
// one matrix.
type LinkageCoefficient struct {
	Linkage     Linkage `json:"linkage"`
	Coefficient float64 `json:"coefficient"`
}

// CompareLinkages agglomerates the same matrix under each rule and reports
// the agglomerative coefficients, strongest first.
func CompareLinkages(d DistanceMatrix, linkages []Linkage) ([]LinkageCoefficient, error) {
	if len(linkages) == 0 {
		linkages = Linkages()
	}
	out := make([]LinkageCoefficient, 0, len(linkages))
	for _, l := range linkages {
		dg, err := Agglomerate(d, l)
		if err != nil {
			return nil, err
		}
		out = append(out, LinkageCoefficient{Linkage: l, Coefficient: dg.Coefficient()})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Coefficient > out[b].Coefficient })
	return out, nil
}
