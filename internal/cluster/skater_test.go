package cluster

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

func unitSquare(id string, x, y float64) geodata.Region {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}}})
	return geodata.Region{ID: id, Name: id, Geometry: mp}
}

// skaterFixture lays one unit square per value at the given origins, builds
// rook contiguity, and spans it with |v_i - v_j| edge costs.
func skaterFixture(t *testing.T, values []float64, origins [][2]float64) (*weights.SpanningForest, *feature.Matrix) {
	t.Helper()
	require.Equal(t, len(values), len(origins))

	regions := make([]geodata.Region, len(values))
	for i := range values {
		regions[i] = unitSquare(fmt.Sprintf("r%d", i+1), origins[i][0], origins[i][1])
	}
	tbl, err := geodata.NewTable(regions, "EPSG:3414")
	require.NoError(t, err)
	nb, err := weights.BuildNeighborhood(tbl, weights.RookRule{})
	require.NoError(t, err)

	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	fm, err := feature.NewMatrix(tbl.IDs(), []string{"v"}, rows)
	require.NoError(t, err)

	d := weights.NewDistMatrix(tbl.IDs(), func(i, j int) float64 {
		return math.Abs(values[i] - values[j])
	})
	g, err := weights.AttachCosts(nb, d)
	require.NoError(t, err)
	return weights.MinimumSpanningForest(g), fm
}

func rowOrigins(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{float64(i), 0}
	}
	return out
}

func TestSkaterSplitsPath(t *testing.T) {
	forest, fm := skaterFixture(t, []float64{0, 1, 2, 30, 31}, rowOrigins(5))

	res, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 1, 2, 2}, res.Labels)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, 2, res.Removed[0].U)
	assert.Equal(t, 3, res.Removed[0].V)
	require.Len(t, res.SSD, 2)
	assert.Less(t, res.SSD[1], res.SSD[0])
}

func TestSkaterThreeWay(t *testing.T) {
	forest, fm := skaterFixture(t, []float64{0, 1, 2, 30, 31}, rowOrigins(5))

	res, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 3})
	require.NoError(t, err)

	// after the big cut, splitting off r1 ties with splitting off r3;
	// the earlier edge in span order wins
	assert.Equal(t, []int{1, 2, 2, 3, 3}, res.Labels)
	assert.Len(t, res.Removed, 2)
}

func TestSkaterMinSize(t *testing.T) {
	values := []float64{0, 50, 51, 52}

	forest, fm := skaterFixture(t, values, rowOrigins(4))
	free, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2}, free.Labels)

	forest, fm = skaterFixture(t, values, rowOrigins(4))
	bounded, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2, MinSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, bounded.Labels)
}

func TestSkaterNoAdmissibleCut(t *testing.T) {
	// rook star: r1 is the hub, every cut strands a single leaf
	forest, fm := skaterFixture(t, []float64{0, 1, 2, 3}, [][2]float64{
		{1, 1}, {0, 1}, {1, 0}, {2, 1},
	})

	_, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2, MinSize: 2})
	assert.ErrorContains(t, err, "no admissible cut")
}

func TestSkaterDisconnectedForest(t *testing.T) {
	forest, fm := skaterFixture(t, []float64{0, 1, 2, 40, 41, 42}, [][2]float64{
		{0, 0}, {1, 0}, {2, 0},
		{10, 10}, {11, 10}, {12, 10},
	})
	require.Equal(t, 2, forest.Components())

	res, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2}, res.Labels)
	assert.Empty(t, res.Removed)
}

func TestSkaterTooFragmented(t *testing.T) {
	forest, fm := skaterFixture(t, []float64{0, 1, 10, 11, 20, 21}, [][2]float64{
		{0, 0}, {1, 0},
		{10, 0}, {11, 0},
		{20, 0}, {21, 0},
	})
	require.Equal(t, 3, forest.Components())

	_, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 2})
	assert.ErrorContains(t, err, "already has 3 components")
}

func TestSkaterValidation(t *testing.T) {
	forest, fm := skaterFixture(t, []float64{0, 1, 2, 30, 31}, rowOrigins(5))

	_, err := Skater(context.Background(), forest, fm, SkaterOptions{K: 1})
	assert.ErrorContains(t, err, "at least 2")

	_, err = Skater(context.Background(), forest, fm, SkaterOptions{K: 6})
	assert.ErrorContains(t, err, "exceeds the region count")

	_, err = Skater(context.Background(), forest, fm, SkaterOptions{K: 3, MinSize: 2})
	assert.ErrorContains(t, err, "need 6 regions, have 5")

	other, err := feature.NewMatrix([]string{"x1", "x2", "x3", "x4", "x5"}, []string{"v"},
		[][]float64{{0}, {1}, {2}, {3}, {4}})
	require.NoError(t, err)
	_, err = Skater(context.Background(), forest, other, SkaterOptions{K: 2})
	assert.ErrorContains(t, err, "region order mismatch")
}
