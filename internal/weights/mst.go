package weights

import (
	"sort"

	"go.uber.org/zap"
)

// SpanningForest is a minimum spanning tree per connected component of a
// cost graph. On a connected graph it is a single tree with N-1 edges.
type SpanningForest struct {
	ids        []string
	edges      []Edge
	components int
	totalCost  float64
}

// MinimumSpanningForest runs Kruskal over the cost graph. Ties are broken
// by (U, V) index order so the result is stable across runs; gonum's
// Kruskal walks edges in map order, which is not.
func MinimumSpanningForest(g *CostGraph) *SpanningForest {
	edges := make([]Edge, len(g.Edges()))
	copy(edges, g.Edges())
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].Weight != edges[b].Weight {
			return edges[a].Weight < edges[b].Weight
		}
		if edges[a].U != edges[b].U {
			return edges[a].U < edges[b].U
		}
		return edges[a].V < edges[b].V
	})

	uf := newUnionFind(g.Len())
	f := &SpanningForest{ids: g.IDs()}
	for _, e := range edges {
		if uf.union(e.U, e.V) {
			f.edges = append(f.edges, e)
			f.totalCost += e.Weight
			if len(f.edges) == g.Len()-1 {
				break
			}
		}
	}
	f.components = g.Len() - len(f.edges)

	if f.components > 1 {
		zap.L().Warn("weights: contiguity graph is disconnected, spanning forest built",
			zap.Int("components", f.components),
			zap.Int("regions", g.Len()),
		)
	}
	return f
}

// Len returns the region count.
func (f *SpanningForest) Len() int { return len(f.ids) }

// Edges returns the forest edges in the order Kruskal accepted them.
func (f *SpanningForest) Edges() []Edge { return f.edges }

// Components returns the number of trees in the forest.
func (f *SpanningForest) Components() int { return f.components }

// TotalCost returns the summed edge weight of the forest.
func (f *SpanningForest) TotalCost() float64 { return f.totalCost }

// IDs returns region ids in table order.
func (f *SpanningForest) IDs() []string { return f.ids }

// unionFind is a plain disjoint-set with union by rank and path halving.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the sets of a and b, reporting whether they were distinct.
func (uf *unionFind) union(a, b int) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}
