package cluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// threeBlobs returns nine points in three tight, well separated groups.
func threeBlobs(t *testing.T) *feature.Matrix {
	t.Helper()
	offsets := [][2]float64{{0, 0}, {50, 50}, {100, 0}}
	local := [][2]float64{{0, 0}, {0.1, 0}, {0.05, 0.0866}}

	ids := make([]string, 0, 9)
	rows := make([][]float64, 0, 9)
	for b, off := range offsets {
		for p, l := range local {
			ids = append(ids, fmt.Sprintf("b%dp%d", b+1, p+1))
			rows = append(rows, []float64{off[0] + l[0], off[1] + l[1]})
		}
	}
	fm, err := feature.NewMatrix(ids, []string{"x", "y"}, rows)
	require.NoError(t, err)
	return fm
}

func gapInputs(t *testing.T, fm *feature.Matrix) (*weights.DistMatrix, *Dendrogram, weights.DistanceOptions) {
	t.Helper()
	dopts := weights.DistanceOptions{Metric: weights.Euclidean}
	d, err := weights.Distances(context.Background(), fm, dopts)
	require.NoError(t, err)
	dg, err := Agglomerate(d, Ward)
	require.NoError(t, err)
	return d, dg, dopts
}

func TestGapStatisticFindsBlobs(t *testing.T) {
	fm := threeBlobs(t)
	d, dg, dopts := gapInputs(t, fm)

	res, err := GapStatistic(context.Background(), fm, d, dg, dopts, GapOptions{
		MaxK: 5,
		B:    8,
		Seed: 11,
	})
	require.NoError(t, err)
	require.Len(t, res.Points, 5)

	assert.Equal(t, 3, res.ChosenK)
	assert.Greater(t, res.Points[2].Gap, res.Points[1].Gap, "gap at k=3 must beat k=2")
	for i, p := range res.Points {
		assert.Equal(t, i+1, p.K)
		assert.Positive(t, p.SE)
	}
}

func TestGapStatisticIdempotent(t *testing.T) {
	fm := threeBlobs(t)
	d, dg, dopts := gapInputs(t, fm)

	opts := GapOptions{MaxK: 4, B: 6, Seed: 42, Workers: 1}
	first, err := GapStatistic(context.Background(), fm, d, dg, dopts, opts)
	require.NoError(t, err)

	opts.Workers = 4
	second, err := GapStatistic(context.Background(), fm, d, dg, dopts, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGapStatisticClampsMaxK(t *testing.T) {
	fm, err := feature.NewMatrix(
		[]string{"a", "b", "c", "d"},
		[]string{"x"},
		[][]float64{{0}, {1}, {10}, {11}},
	)
	require.NoError(t, err)
	d, dg, dopts := gapInputs(t, fm)

	res, err := GapStatistic(context.Background(), fm, d, dg, dopts, GapOptions{MaxK: 10, B: 3, Seed: 1})
	require.NoError(t, err)
	assert.Len(t, res.Points, 3)
}

func TestGapStatisticNeverChoosesOne(t *testing.T) {
	// near-uniform data: no real structure, but the choice must still be >= 2
	fm, err := feature.NewMatrix(
		[]string{"a", "b", "c", "d", "e", "f"},
		[]string{"x"},
		[][]float64{{0.3}, {1.9}, {3.1}, {4.2}, {5.8}, {7.4}},
	)
	require.NoError(t, err)
	d, dg, dopts := gapInputs(t, fm)

	res, err := GapStatistic(context.Background(), fm, d, dg, dopts, GapOptions{MaxK: 4, B: 5, Seed: 3})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ChosenK, 2)
}

func TestGapStatisticValidation(t *testing.T) {
	fm := threeBlobs(t)
	d, dg, dopts := gapInputs(t, fm)

	_, err := GapStatistic(context.Background(), fm, d, dg, dopts, GapOptions{MaxK: 5, B: 0, Seed: 1})
	assert.ErrorContains(t, err, "at least 1 reference bootstrap")

	_, err = GapStatistic(context.Background(), fm, d, dg, dopts, GapOptions{MaxK: 1, B: 3, Seed: 1})
	assert.ErrorContains(t, err, "max k must be at least 2")

	small, err := feature.NewMatrix([]string{"a", "b"}, []string{"x"}, [][]float64{{0}, {1}})
	require.NoError(t, err)
	sd, sdg, _ := gapInputs(t, small)
	_, err = GapStatistic(context.Background(), small, sd, sdg, dopts, GapOptions{MaxK: 2, B: 3, Seed: 1})
	assert.ErrorContains(t, err, "at least 3 regions")
}
