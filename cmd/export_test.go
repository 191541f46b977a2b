package main

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestWriteResultCSV(t *testing.T) {
	res := smallRunResult(t)

	var buf bytes.Buffer
	require.NoError(t, writeResultCSV(&buf, res))

	sections := strings.SplitN(buf.String(), "\n\n", 2)
	require.Len(t, sections, 2, "scores and summaries sections")

	scores, err := csv.NewReader(strings.NewReader(sections[0])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"variant", "k", "within_ssd", "fragmentation"}, scores[0])
	require.Len(t, scores, 4, "header plus one row per variant")
	for _, row := range scores[1:] {
		assert.Equal(t, "2", row[1])
	}

	summaries, err := csv.NewReader(strings.NewReader(sections[1])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"variant", "label", "size", "column", "mean", "median", "std_dev"}, summaries[0])
	// 3 variants x 2 clusters x 2 columns
	assert.Len(t, summaries, 1+3*2*2)
}

func TestWriteResultXLSX(t *testing.T) {
	res := smallRunResult(t)
	path := filepath.Join(t.TempDir(), "result.xlsx")

	require.NoError(t, writeResultXLSX(path, res))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, "Scores", f.Sheets[0].Name)
	assert.Equal(t, "Summaries", f.Sheets[1].Name)
	assert.Equal(t, "Labels", f.Sheets[2].Name)

	scores := f.Sheets[0]
	require.Len(t, scores.Rows, 4)
	assert.Equal(t, "variant", scores.Rows[0].Cells[0].String())
	assert.Equal(t, "hierarchical", scores.Rows[1].Cells[0].String())

	labels := f.Sheets[2]
	require.Len(t, labels.Rows, 5, "header plus one row per region")
	assert.Equal(t, "r1", labels.Rows[1].Cells[0].String())
	label, err := labels.Rows[1].Cells[2].Int()
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, label)
}
