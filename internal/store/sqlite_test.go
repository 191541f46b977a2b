package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRegions(runID string) []model.RunRegion {
	return []model.RunRegion{
		{
			RunID:    runID,
			RegionID: "AMK",
			Name:     "Ang Mo Kio",
			Labels:   map[string]int{"hierarchical": 1, "skater": 1},
			Geometry: []byte{0x01, 0x06, 0x00, 0x00, 0x20},
		},
		{
			RunID:    runID,
			RegionID: "BIS",
			Name:     "Bishan",
			Labels:   map[string]int{"hierarchical": 2, "skater": 1},
			Geometry: []byte{0x01, 0x06, 0x00, 0x00, 0x21},
		},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	params := []byte(`{"k":2,"linkage":"ward","rule":"queen"}`)
	run, err := st.CreateRun(ctx, "subzones-2019", params)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.False(t, run.Terminal())

	result := []byte(`{"chosen_k":2,"warnings":[]}`)
	err = st.CompleteRun(ctx, run.ID, result, 2, testRegions(run.ID))
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "subzones-2019", got.Dataset)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 2, got.ChosenK)
	assert.JSONEq(t, string(params), string(got.Params))
	assert.JSONEq(t, string(result), string(got.Result))
	assert.Empty(t, got.Error)

	regions, err := st.GetRunRegions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "AMK", regions[0].RegionID)
	assert.Equal(t, "Ang Mo Kio", regions[0].Name)
	assert.Equal(t, map[string]int{"hierarchical": 1, "skater": 1}, regions[0].Labels)
	assert.Equal(t, []byte{0x01, 0x06, 0x00, 0x00, 0x20}, regions[0].Geometry)
	assert.Equal(t, "BIS", regions[1].RegionID)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "subzones-2019", []byte(`{}`))
	require.NoError(t, err)

	err = st.FailRun(ctx, run.ID, "contiguity graph is empty")
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "contiguity graph is empty", got.Error)
	assert.True(t, got.Terminal())
	assert.Nil(t, got.Result)
}

func TestSQLite_CompleteRunReplacesRegions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "subzones-2019", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, st.CompleteRun(ctx, run.ID, []byte(`{}`), 2, testRegions(run.ID)))

	// Completing again must not leave stale rows behind.
	replacement := []model.RunRegion{{
		RunID:    run.ID,
		RegionID: "TAM",
		Labels:   map[string]int{"hierarchical": 1},
		Geometry: []byte{0xff},
	}}
	require.NoError(t, st.CompleteRun(ctx, run.ID, []byte(`{}`), 2, replacement))

	regions, err := st.GetRunRegions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "TAM", regions[0].RegionID)
}

func TestSQLite_GetRunMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CompleteRunMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "no-such-run", []byte(`{}`), 2, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "subzones-2019", []byte(`{}`))
	require.NoError(t, err)
	b, err := st.CreateRun(ctx, "planning-areas", []byte(`{}`))
	require.NoError(t, err)
	c, err := st.CreateRun(ctx, "subzones-2019", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, st.CompleteRun(ctx, b.ID, []byte(`{}`), 3, nil))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, c.ID, all[0].ID)
	assert.Equal(t, a.ID, all[2].ID)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, b.ID, complete[0].ID)
	assert.Equal(t, 3, complete[0].ChosenK)

	byDataset, err := st.ListRuns(ctx, RunFilter{Dataset: "subzones-2019"})
	require.NoError(t, err)
	assert.Len(t, byDataset, 2)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, b.ID, limited[0].ID)
}

func TestSQLite_DeleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "subzones-2019", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, []byte(`{}`), 2, testRegions(run.ID)))

	require.NoError(t, st.DeleteRun(ctx, run.ID))

	_, err = st.GetRun(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	regions, err := st.GetRunRegions(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, regions)

	err = st.DeleteRun(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
