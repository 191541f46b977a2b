package cluster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// SkaterOptions controls the constrained partitioner.
type SkaterOptions struct {
	K       int
	MinSize int // smallest admissible cluster, default 1
}

// SkaterResult is a spatially contiguous partition of the spanning forest.
type SkaterResult struct {
	Labels  []int          // 1..k, numbered by first appearance in region order
	Removed []weights.Edge // cut edges in removal order
	SSD     []float64      // total within-cluster SSD, index 0 before any cut
}

// Skater partitions the spanning forest into K contiguous clusters by
// greedily removing the edge whose cut most reduces total within-cluster
// SSD in attribute space. Every cluster is a connected piece of the
// contiguity graph by construction. A cut is admissible only if both
// sides hold at least MinSize regions.
func Skater(ctx context.Context, forest *weights.SpanningForest, fm *feature.Matrix, opts SkaterOptions) (*SkaterResult, error) {
	n := forest.Len()
	if fm.Len() != n {
		return nil, eris.Errorf("cluster: forest has %d regions but features have %d", n, fm.Len())
	}
	for i, id := range forest.IDs() {
		if fm.IDs()[i] != id {
			return nil, eris.Errorf("cluster: region order mismatch at index %d (%q vs %q)", i, id, fm.IDs()[i])
		}
	}
	if opts.K < 2 {
		return nil, eris.Errorf("cluster: k must be at least 2, got %d", opts.K)
	}
	if opts.K > n {
		return nil, eris.Errorf("cluster: k=%d exceeds the region count %d", opts.K, n)
	}
	minSize := opts.MinSize
	if minSize < 1 {
		minSize = 1
	}
	if minSize*opts.K > n {
		return nil, eris.Errorf("cluster: k=%d clusters of at least %d regions need %d regions, have %d", opts.K, minSize, minSize*opts.K, n)
	}
	if forest.Components() > opts.K {
		return nil, eris.Errorf("cluster: spanning forest already has %d components, cannot form k=%d", forest.Components(), opts.K)
	}

	edges := forest.Edges()
	adj := make([][]int, n) // incident edge indices
	for ei, e := range edges {
		adj[e.U] = append(adj[e.U], ei)
		adj[e.V] = append(adj[e.V], ei)
	}
	removed := make([]bool, len(edges))
	dim := fm.NumFeatures()

	st := &skaterState{
		n:     n,
		dim:   dim,
		fm:    fm,
		edges: edges,
		adj:   adj,
	}

	res := &SkaterResult{}
	comp, count := st.components(removed)
	sums := st.componentSums(comp, count)
	res.SSD = append(res.SSD, sums.total())

	for count < opts.K {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "cluster: skater")
		}

		bestEdge := -1
		bestDelta := -1.0
		for ei, e := range edges {
			if removed[ei] {
				continue
			}
			c := comp[e.U]
			if sums.size[c] < 2*minSize {
				continue
			}
			sideSum, sideSq, sideN := st.sideSums(e.U, ei, removed)
			otherN := sums.size[c] - sideN
			if sideN < minSize || otherN < minSize {
				continue
			}
			ssdA := ssdFromSums(sideSum, sideSq, sideN)
			ssdB := ssdFromSums(diff(sums.sum[c], sideSum), diff(sums.sq[c], sideSq), otherN)
			delta := sums.ssd[c] - ssdA - ssdB
			if delta > bestDelta {
				bestDelta = delta
				bestEdge = ei
			}
		}
		if bestEdge < 0 {
			return nil, eris.Errorf("cluster: no admissible cut toward k=%d under min cluster size %d", opts.K, minSize)
		}

		removed[bestEdge] = true
		res.Removed = append(res.Removed, edges[bestEdge])
		comp, count = st.components(removed)
		sums = st.componentSums(comp, count)
		res.SSD = append(res.SSD, sums.total())
	}

	res.Labels = relabel(comp)
	zap.L().Debug("cluster: skater partition complete",
		zap.Int("k", opts.K),
		zap.Int("cuts", len(res.Removed)),
		zap.Float64("ssd", res.SSD[len(res.SSD)-1]),
	)
	return res, nil
}

type skaterState struct {
	n     int
	dim   int
	fm    *feature.Matrix
	edges []weights.Edge
	adj   [][]int
}

// components labels nodes by connected piece of the live forest. Labels
// are assigned in region order, so they are already first-occurrence
// numbered from 0.
func (st *skaterState) components(removed []bool) ([]int, int) {
	comp := make([]int, st.n)
	for i := range comp {
		comp[i] = -1
	}
	count := 0
	queue := make([]int, 0, st.n)
	for start := 0; start < st.n; start++ {
		if comp[start] >= 0 {
			continue
		}
		comp[start] = count
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, ei := range st.adj[u] {
				if removed[ei] {
					continue
				}
				v := st.edges[ei].U
				if v == u {
					v = st.edges[ei].V
				}
				if comp[v] < 0 {
					comp[v] = count
					queue = append(queue, v)
				}
			}
		}
		count++
	}
	return comp, count
}

// sideSums walks the side of edge cut that contains start, accumulating
// per-column sums, squared sums, and the node count.
func (st *skaterState) sideSums(start, cut int, removed []bool) (sum, sq []float64, n int) {
	sum = make([]float64, st.dim)
	sq = make([]float64, st.dim)
	visited := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		n++
		row := st.fm.Row(u)
		for c, v := range row {
			sum[c] += v
			sq[c] += v * v
		}
		for _, ei := range st.adj[u] {
			if removed[ei] || ei == cut {
				continue
			}
			v := st.edges[ei].U
			if v == u {
				v = st.edges[ei].V
			}
			if !visited[v] {
				visited[v] = true
				queue = append(queue, v)
			}
		}
	}
	return sum, sq, n
}

// compSums carries per-component accumulators for the current partition.
type compSums struct {
	size []int
	sum  [][]float64
	sq   [][]float64
	ssd  []float64
}

func (st *skaterState) componentSums(comp []int, count int) *compSums {
	cs := &compSums{
		size: make([]int, count),
		sum:  make([][]float64, count),
		sq:   make([][]float64, count),
		ssd:  make([]float64, count),
	}
	for c := 0; c < count; c++ {
		cs.sum[c] = make([]float64, st.dim)
		cs.sq[c] = make([]float64, st.dim)
	}
	for i := 0; i < st.n; i++ {
		c := comp[i]
		cs.size[c]++
		row := st.fm.Row(i)
		for col, v := range row {
			cs.sum[c][col] += v
			cs.sq[c][col] += v * v
		}
	}
	for c := 0; c < count; c++ {
		cs.ssd[c] = ssdFromSums(cs.sum[c], cs.sq[c], cs.size[c])
	}
	return cs
}

func (cs *compSums) total() float64 {
	t := 0.0
	for _, v := range cs.ssd {
		t += v
	}
	return t
}

// ssdFromSums computes sum of squared deviations from the mean per column
// given raw and squared sums.
func ssdFromSums(sum, sq []float64, n int) float64 {
	if n < 2 {
		return 0
	}
	total := 0.0
	for c := range sum {
		v := sq[c] - sum[c]*sum[c]/float64(n)
		if v > 0 {
			total += v
		}
	}
	return total
}

func diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// relabel renumbers zero-based component labels into 1-based cluster
// labels ordered by first appearance.
func relabel(comp []int) []int {
	next := 1
	seen := make(map[int]int)
	labels := make([]int, len(comp))
	for i, c := range comp {
		l, ok := seen[c]
		if !ok {
			l = next
			seen[c] = l
			next++
		}
		labels[i] = l
	}
	return labels
}
