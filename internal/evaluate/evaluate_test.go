package evaluate

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/drkrodriguez/ISSS626-GAA/internal/attribute"
	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// rowFixture builds a row of adjacent unit squares with one POP column.
func rowFixture(t *testing.T, pops ...float64) (*feature.Table, *weights.Neighborhood) {
	t.Helper()

	regions := make([]geodata.Region, len(pops))
	rows := make([][]string, len(pops))
	for i, pop := range pops {
		id := fmt.Sprintf("r%d", i+1)
		x := float64(i)
		mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
			{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0},
		}}})
		regions[i] = geodata.Region{ID: id, Name: id, Geometry: mp}
		rows[i] = []string{id, strconv.FormatFloat(pop, 'f', -1, 64)}
	}

	tbl, err := geodata.NewTable(regions, "EPSG:3414")
	require.NoError(t, err)
	attrs, err := attribute.NewTable([]string{"ID", "POP"}, rows)
	require.NoError(t, err)
	ft, err := feature.Build(tbl, attrs, "ID", nil, feature.JoinInner)
	require.NoError(t, err)
	nb, err := weights.BuildNeighborhood(tbl, weights.RookRule{})
	require.NoError(t, err)
	return ft, nb
}

func TestSummarize(t *testing.T) {
	ft, _ := rowFixture(t, 10, 20, 60, 100)

	sums, err := Summarize(ft, []int{1, 1, 2, 2})
	require.NoError(t, err)
	require.Len(t, sums, 2)

	first := sums[0]
	assert.Equal(t, 1, first.Label)
	assert.Equal(t, 2, first.Size)
	assert.Equal(t, []string{"r1", "r2"}, first.Regions)
	require.Len(t, first.Columns, 1)
	assert.Equal(t, "POP", first.Columns[0].Column)
	assert.InDelta(t, 15.0, first.Columns[0].Mean, 1e-9)
	assert.InDelta(t, 15.0, first.Columns[0].Median, 1e-9)
	assert.InDelta(t, 7.0710678, first.Columns[0].StdDev, 1e-6)

	second := sums[1]
	assert.InDelta(t, 80.0, second.Columns[0].Mean, 1e-9)
}

func TestSummarizeSingleton(t *testing.T) {
	ft, _ := rowFixture(t, 10, 20, 60)

	sums, err := Summarize(ft, []int{1, 1, 2})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Zero(t, sums[1].Columns[0].StdDev)
	assert.InDelta(t, 60.0, sums[1].Columns[0].Median, 1e-9)
}

func TestSummarizeRejectsGaps(t *testing.T) {
	ft, _ := rowFixture(t, 10, 20, 60)

	_, err := Summarize(ft, []int{1, 1, 3})
	assert.ErrorContains(t, err, "label 2 of 3 is empty")

	_, err = Summarize(ft, []int{0, 1, 2})
	assert.ErrorContains(t, err, "invalid label")

	_, err = Summarize(ft, []int{1, 2})
	assert.ErrorContains(t, err, "2 labels for 3 regions")
}

func TestFragmentationContiguous(t *testing.T) {
	_, nb := rowFixture(t, 1, 2, 3, 4, 5)

	rep, err := Fragmentation([]int{1, 1, 1, 2, 2}, nb)
	require.NoError(t, err)
	assert.Zero(t, rep.Total)
	assert.Empty(t, rep.ByLabel)
}

func TestFragmentationSplitCluster(t *testing.T) {
	_, nb := rowFixture(t, 1, 2, 3, 4, 5)

	// cluster 1 sits on both ends of the row, cut by cluster 2
	rep, err := Fragmentation([]int{1, 1, 2, 1, 1}, nb)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, map[int]int{1: 1}, rep.ByLabel)
}

func TestFragmentationCheckerboard(t *testing.T) {
	_, nb := rowFixture(t, 1, 2, 3, 4, 5)

	rep, err := Fragmentation([]int{1, 2, 1, 2, 1}, nb)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, rep.ByLabel)
}

func TestCompare(t *testing.T) {
	ft, nb := rowFixture(t, 10, 12, 50, 52)
	fm, err := feature.NewMatrix(ft.IDs(), []string{"pop"}, [][]float64{
		{0}, {0.04}, {0.8}, {0.84},
	})
	require.NoError(t, err)

	scores, err := Compare(fm, nb, []Variant{
		{Name: "tight", Labels: []int{1, 1, 2, 2}},
		{Name: "split", Labels: []int{1, 2, 1, 2}},
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Equal(t, "tight", scores[0].Variant)
	assert.Equal(t, 2, scores[0].K)
	assert.Zero(t, scores[0].Fragmentation)
	assert.Equal(t, 2, scores[1].Fragmentation)
	assert.Less(t, scores[0].WithinSSD, scores[1].WithinSSD)
}

func TestCompareValidation(t *testing.T) {
	ft, nb := rowFixture(t, 10, 12, 50)
	fm, err := feature.NewMatrix(ft.IDs(), []string{"pop"}, [][]float64{{0}, {0.1}, {1}})
	require.NoError(t, err)

	_, err = Compare(fm, nb, nil)
	assert.ErrorContains(t, err, "no variants")

	_, err = Compare(fm, nb, []Variant{{Name: "short", Labels: []int{1, 2}}})
	assert.ErrorContains(t, err, "2 labels for 3 regions")
}
