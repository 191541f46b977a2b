package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/drkrodriguez/ISSS626-GAA/internal/attribute"
	"github.com/drkrodriguez/ISSS626-GAA/internal/config"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/pipeline"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		JoinPolicy:         "inner",
		Standardize:        "minmax",
		CollinearThreshold: 0.8,
		Metric:             "euclidean",
		MinkowskiP:         3,
		Rule:               "queen",
		KNN:                8,
		Linkage:            "ward",
		GapMaxK:            10,
		GapB:               50,
		Alpha:              -1,
		MinSize:            1,
		Seed:               42,
		Workers:            1,
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := paramsFromConfig(testPipelineConfig())

	assert.Equal(t, "inner", p.JoinPolicy)
	assert.Equal(t, "minmax", p.Standardize)
	assert.Equal(t, "queen", p.Rule)
	assert.Equal(t, 0, p.K)
	assert.Equal(t, int64(42), p.Seed)
	assert.Equal(t, -1.0, p.Alpha)
}

func TestApplyParamFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addParamFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--k=4", "--linkage=average", "--rule=knn", "--knn=6", "--variants=skater",
	}))

	p := paramsFromConfig(testPipelineConfig())
	applyParamFlags(fs, &p)

	assert.Equal(t, 4, p.K)
	assert.Equal(t, "average", p.Linkage)
	assert.Equal(t, "knn", p.Rule)
	assert.Equal(t, 6, p.KNN)
	assert.Equal(t, []string{"skater"}, p.Variants)

	// untouched flags keep the config values
	assert.Equal(t, "minmax", p.Standardize)
	assert.Equal(t, "euclidean", p.Metric)
	assert.Equal(t, int64(42), p.Seed)
}

func TestApplyParamFlags_NoChanges(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addParamFlags(fs)
	require.NoError(t, fs.Parse(nil))

	want := paramsFromConfig(testPipelineConfig())
	got := want
	applyParamFlags(fs, &got)

	assert.Equal(t, want, got)
}

// smallRunResult runs the pipeline on a 2x2 block of unit squares.
func smallRunResult(t *testing.T) *pipeline.Result {
	t.Helper()

	pops := []float64{100, 110, 480, 500}
	regions := make([]geodata.Region, 4)
	rows := make([][]string, 4)
	for i, pop := range pops {
		id := fmt.Sprintf("r%d", i+1)
		x, y := float64(i%2), float64(i/2)
		mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
			{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
		}}})
		regions[i] = geodata.Region{ID: id, Name: "Region " + id, Geometry: mp}
		rows[i] = []string{id, fmt.Sprintf("%g", pop), fmt.Sprintf("%g", pop/10)}
	}

	tbl, err := geodata.NewTable(regions, "EPSG:3414")
	require.NoError(t, err)
	attrs, err := attribute.NewTable([]string{"ID", "POP", "AREA"}, rows)
	require.NoError(t, err)

	p := pipeline.Params{
		Key:                "ID",
		JoinPolicy:         "inner",
		Standardize:        "minmax",
		CollinearThreshold: 0.95,
		Metric:             "euclidean",
		Rule:               "rook",
		Linkage:            "ward",
		K:                  2,
		GapMaxK:            3,
		GapB:               3,
		Alpha:              -1,
		Seed:               7,
		Workers:            1,
	}
	res, err := pipeline.Run(context.Background(), pipeline.Inputs{Geo: tbl, Attrs: attrs}, p)
	require.NoError(t, err)
	return res
}

func TestBuildRunRegions(t *testing.T) {
	res := smallRunResult(t)

	regions, err := buildRunRegions("run-1", res)
	require.NoError(t, err)
	require.Len(t, regions, 4)

	first := regions[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "r1", first.RegionID)
	assert.Equal(t, "Region r1", first.Name)

	// one label per variant, every label in 1..k
	require.Len(t, first.Labels, len(res.Assignments))
	for _, a := range res.Assignments {
		l, ok := first.Label(a.Variant)
		require.True(t, ok, a.Variant)
		assert.GreaterOrEqual(t, l, 1)
		assert.LessOrEqual(t, l, res.ChosenK)
	}

	// the geometry survives an EWKB round trip
	g, err := geodata.DecodeEWKB(first.Geometry)
	require.NoError(t, err)
	assert.IsType(t, &geom.MultiPolygon{}, g)
}
