package weights

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func costGraph(t *testing.T, nb *Neighborhood, pairwise func(i, j int) float64) *CostGraph {
	t.Helper()
	d := NewDistMatrix(nb.IDs(), pairwise)
	g, err := AttachCosts(nb, d)
	require.NoError(t, err)
	return g
}

func TestAttachCostsChecksAlignment(t *testing.T) {
	nb, err := BuildNeighborhood(quad(t), RookRule{})
	require.NoError(t, err)

	short := NewDistMatrix([]string{"a", "b"}, func(i, j int) float64 { return 1 })
	_, err = AttachCosts(nb, short)
	assert.ErrorContains(t, err, "distance matrix has 2")

	shuffled := NewDistMatrix([]string{"b", "a", "c", "d"}, func(i, j int) float64 { return 1 })
	_, err = AttachCosts(nb, shuffled)
	assert.ErrorContains(t, err, "region order mismatch")
}

func TestAttachCostsCanonicalEdges(t *testing.T) {
	nb, err := BuildNeighborhood(quad(t), RookRule{})
	require.NoError(t, err)

	g := costGraph(t, nb, func(i, j int) float64 { return float64(i + j) })
	require.Len(t, g.Edges(), 4)
	for _, e := range g.Edges() {
		assert.Less(t, e.U, e.V)
		assert.Equal(t, g.IDs()[e.U], e.UID)
		assert.Equal(t, g.IDs()[e.V], e.VID)
		assert.Equal(t, float64(e.U+e.V), e.Weight)
	}
}

func TestSpanningTreeEdgeCount(t *testing.T) {
	nb, err := BuildNeighborhood(quad(t), QueenRule{})
	require.NoError(t, err)

	g := costGraph(t, nb, func(i, j int) float64 { return float64(i*3+j) + 0.5 })
	f := MinimumSpanningForest(g)

	assert.Len(t, f.Edges(), g.Len()-1)
	assert.Equal(t, 1, f.Components())
}

func TestSpanningForestMinimality(t *testing.T) {
	tbl := gridTable(t,
		square("a", 0, 0, 1),
		square("b", 10, 0, 1),
		square("c", 20, 0, 1),
		square("d", 30, 0, 1),
		square("e", 40, 0, 1),
	)
	nb, err := BuildNeighborhood(tbl, DistanceBandRule{Band: 1000})
	require.NoError(t, err)

	g := costGraph(t, nb, func(i, j int) float64 {
		return float64((3*i+5*j*j+7)%11) + 0.5
	})
	require.Len(t, g.Edges(), 10)

	f := MinimumSpanningForest(g)
	require.Len(t, f.Edges(), 4)

	// exhaustive check over every 4-edge subset of the complete graph
	edges := g.Edges()
	best := math.Inf(1)
	for mask := 0; mask < 1<<len(edges); mask++ {
		if bits.OnesCount(uint(mask)) != 4 {
			continue
		}
		uf := newUnionFind(5)
		total := 0.0
		acyclic := true
		for b, e := range edges {
			if mask&(1<<b) == 0 {
				continue
			}
			if !uf.union(e.U, e.V) {
				acyclic = false
				break
			}
			total += e.Weight
		}
		if acyclic && total < best {
			best = total
		}
	}
	assert.InDelta(t, best, f.TotalCost(), 1e-9)
}

func TestSpanningForestTieBreakStable(t *testing.T) {
	nb, err := BuildNeighborhood(quad(t), QueenRule{})
	require.NoError(t, err)

	g := costGraph(t, nb, func(i, j int) float64 { return 1 })

	first := MinimumSpanningForest(g)
	second := MinimumSpanningForest(g)
	assert.Equal(t, first.Edges(), second.Edges())

	// equal weights resolve by index order, so the lowest (U, V) pairs win
	require.Len(t, first.Edges(), 3)
	assert.Equal(t, [2]int{0, 1}, [2]int{first.Edges()[0].U, first.Edges()[0].V})
	assert.Equal(t, [2]int{0, 2}, [2]int{first.Edges()[1].U, first.Edges()[1].V})
	assert.Equal(t, [2]int{0, 3}, [2]int{first.Edges()[2].U, first.Edges()[2].V})
}

func TestSpanningForestDisconnected(t *testing.T) {
	tbl := gridTable(t,
		square("a", 0, 0, 1),
		square("b", 1, 0, 1),
		square("c", 10, 10, 1),
		square("d", 11, 10, 1),
	)
	nb, err := BuildNeighborhood(tbl, QueenRule{})
	require.NoError(t, err)

	g := costGraph(t, nb, func(i, j int) float64 { return 2 })
	f := MinimumSpanningForest(g)

	assert.Len(t, f.Edges(), 2)
	assert.Equal(t, 2, f.Components())
	assert.InDelta(t, 4.0, f.TotalCost(), 1e-9)
}
