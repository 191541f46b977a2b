package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/drkrodriguez/ISSS626-GAA/internal/attribute"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
)

// rowOfSquares builds a geometry table of unit squares side by side, one
// per id, so adjacency and order are predictable.
func rowOfSquares(t *testing.T, ids ...string) *geodata.Table {
	t.Helper()
	regions := make([]geodata.Region, len(ids))
	for i, id := range ids {
		x := float64(i)
		ring := geom.NewLinearRingFlat(geom.XY, []float64{x, 0, x + 1, 0, x + 1, 1, x, 1, x, 0})
		poly := geom.NewPolygon(geom.XY)
		require.NoError(t, poly.Push(ring))
		mp := geom.NewMultiPolygon(geom.XY)
		require.NoError(t, mp.Push(poly))
		regions[i] = geodata.Region{ID: id, Name: id, Geometry: mp}
	}
	tbl, err := geodata.NewTable(regions, "EPSG:3857")
	require.NoError(t, err)
	return tbl
}

func attrTable(t *testing.T, columns []string, rows ...[]string) *attribute.Table {
	t.Helper()
	tbl, err := attribute.NewTable(columns, rows)
	require.NoError(t, err)
	return tbl
}

func TestBuildInnerJoin(t *testing.T) {
	geo := rowOfSquares(t, "a", "b", "c")
	attrs := attrTable(t,
		[]string{"TS", "RADIO", "HH"},
		[]string{"a", "100", "400"},
		[]string{"b", "250", "500"},
		[]string{"z", "999", "100"}, // no geometry match
	)

	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"a", "b"}, tbl.IDs())
	assert.Equal(t, 2, tbl.Report.Matched)
	assert.Equal(t, 1, tbl.Report.GeometryOnly)
	assert.Equal(t, 1, tbl.Report.AttributeOnly)
	assert.Len(t, tbl.Warnings, 2)

	radio, err := tbl.Column("RADIO")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 250}, radio)

	// The key column itself is not materialized as a feature.
	_, err = tbl.Column("TS")
	require.Error(t, err)
}

func TestBuildZeroMatches(t *testing.T) {
	geo := rowOfSquares(t, "a", "b")
	attrs := attrTable(t, []string{"TS", "RADIO"}, []string{"x", "1"}, []string{"y", "2"})

	_, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched zero rows")
}

func TestBuildMissingKeyColumn(t *testing.T) {
	geo := rowOfSquares(t, "a")
	attrs := attrTable(t, []string{"ID", "RADIO"}, []string{"a", "1"})

	_, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no join key column "TS"`)
}

func TestBuildDuplicateKey(t *testing.T) {
	geo := rowOfSquares(t, "a")
	attrs := attrTable(t, []string{"TS", "RADIO"}, []string{"a", "1"}, []string{"a", "2"})

	_, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestBuildDerivesRates(t *testing.T) {
	geo := rowOfSquares(t, "a", "b")
	attrs := attrTable(t,
		[]string{"TS", "RADIO", "HH"},
		[]string{"a", "100", "400"},
		[]string{"b", "250", "500"},
	)
	spec := &VarSpec{
		Rates: []RateSpec{{Name: "RADIO_PR", Count: "RADIO", Per: "HH", Scale: 1000}},
		Keep:  []string{"RADIO_PR"},
	}

	tbl, err := Build(geo, attrs, "TS", spec, JoinInner)
	require.NoError(t, err)

	assert.Equal(t, []string{"RADIO_PR"}, tbl.Columns())
	rate, err := tbl.Column("RADIO_PR")
	require.NoError(t, err)
	assert.InDelta(t, 250.0, rate[0], 1e-9) // 100/400*1000
	assert.InDelta(t, 500.0, rate[1], 1e-9) // 250/500*1000
}

func TestBuildRateZeroDenominator(t *testing.T) {
	geo := rowOfSquares(t, "a")
	attrs := attrTable(t, []string{"TS", "RADIO", "HH"}, []string{"a", "100", "0"})
	spec := &VarSpec{Rates: []RateSpec{{Name: "R", Count: "RADIO", Per: "HH", Scale: 1000}}}

	_, err := Build(geo, attrs, "TS", spec, JoinInner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `region "a" has zero HH`)
}

func TestBuildKeepUnknownColumn(t *testing.T) {
	geo := rowOfSquares(t, "a")
	attrs := attrTable(t, []string{"TS", "RADIO"}, []string{"a", "1"})
	spec := &VarSpec{Keep: []string{"NOPE"}}

	_, err := Build(geo, attrs, "TS", spec, JoinInner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown column "NOPE"`)
}

func TestFlagCollinear(t *testing.T) {
	geo := rowOfSquares(t, "a", "b", "c", "d")
	attrs := attrTable(t,
		[]string{"TS", "X", "X2", "XNEG", "NOISE"},
		[]string{"a", "1", "2", "-1", "7"},
		[]string{"b", "2", "4", "-2", "1"},
		[]string{"c", "3", "6", "-3", "9"},
		[]string{"d", "4", "8", "-4", "2"},
	)

	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	pairs, err := FlagCollinear(tbl, []string{"X", "X2", "XNEG", "NOISE"}, 0.85)
	require.NoError(t, err)

	// X~X2 (r=1), X~XNEG (r=-1), X2~XNEG (r=-1) all flagged; NOISE is not.
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.NotEqual(t, "NOISE", p.A)
		assert.NotEqual(t, "NOISE", p.B)
		assert.InDelta(t, 1.0, absOf(p.Correlation), 1e-9)
	}
}

func TestFlagCollinearBadThreshold(t *testing.T) {
	geo := rowOfSquares(t, "a")
	attrs := attrTable(t, []string{"TS", "X"}, []string{"a", "1"})
	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	_, err = FlagCollinear(tbl, nil, 0)
	require.Error(t, err)
	_, err = FlagCollinear(tbl, nil, 1.2)
	require.Error(t, err)
}

func absOf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestStandardizeMinMax(t *testing.T) {
	geo := rowOfSquares(t, "a", "b", "c")
	attrs := attrTable(t,
		[]string{"TS", "X", "Y", "CONST"},
		[]string{"a", "10", "5", "3"},
		[]string{"b", "20", "9", "3"},
		[]string{"c", "30", "1", "3"},
	)
	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	m, dropped, err := Standardize(tbl, []string{"X", "Y", "CONST"}, ModeMinMax)
	require.NoError(t, err)

	// Zero-variance column is excluded and reported, never NaN.
	require.Len(t, dropped, 1)
	assert.Equal(t, "CONST", dropped[0].Column)
	assert.Equal(t, 3.0, dropped[0].Value)
	assert.Equal(t, []string{"X", "Y"}, m.Columns())

	// Every kept column spans exactly [0, 1].
	for _, c := range m.Columns() {
		col, err := m.Column(c)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, floats.Min(col), 1e-12)
		assert.InDelta(t, 1.0, floats.Max(col), 1e-12)
	}

	x, err := m.Column("X")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, x[1], 1e-12)
}

func TestStandardizeZScore(t *testing.T) {
	geo := rowOfSquares(t, "a", "b", "c", "d")
	attrs := attrTable(t,
		[]string{"TS", "X"},
		[]string{"a", "2"},
		[]string{"b", "4"},
		[]string{"c", "6"},
		[]string{"d", "8"},
	)
	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	m, dropped, err := Standardize(tbl, []string{"X"}, ModeZScore)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	col, err := m.Column("X")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, stat.Mean(col, nil), 1e-12)
	assert.InDelta(t, 1.0, stat.StdDev(col, nil), 1e-12)
}

func TestStandardizeAllConstant(t *testing.T) {
	geo := rowOfSquares(t, "a", "b")
	attrs := attrTable(t,
		[]string{"TS", "C1", "C2"},
		[]string{"a", "5", "7"},
		[]string{"b", "5", "7"},
	)
	tbl, err := Build(geo, attrs, "TS", nil, JoinInner)
	require.NoError(t, err)

	_, dropped, err := Standardize(tbl, []string{"C1", "C2"}, ModeMinMax)
	require.Error(t, err)
	assert.Len(t, dropped, 2)
	assert.Contains(t, err.Error(), "zero variance")
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"minmax", "zscore"} {
		_, err := ParseMode(valid)
		assert.NoError(t, err)
	}
	_, err := ParseMode("robust")
	require.Error(t, err)
}

func TestParseJoinPolicy(t *testing.T) {
	for _, valid := range []string{"inner", "left"} {
		_, err := ParseJoinPolicy(valid)
		assert.NoError(t, err)
	}
	_, err := ParseJoinPolicy("outer")
	require.Error(t, err)
}
