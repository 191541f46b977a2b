package attribute

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	fillSheet(sheet, rows)
	path := filepath.Join(t.TempDir(), "attrs.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func fillSheet(sheet *xlsx.Sheet, rows [][]string) {
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
}

func TestReadXLSX(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		path := writeXLSX(t, [][]string{
			{"TS", "RADIO", "TV"},
			{"TS01", "850", "1200"},
			{"TS02", "430", "610"},
		})

		tbl, err := ReadXLSX(path, XLSXOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "RADIO", "TV"}, tbl.Columns())
		assert.Equal(t, 2, tbl.NumRows())

		radio, err := tbl.NumericColumn("RADIO")
		require.NoError(t, err)
		assert.Equal(t, []float64{850, 430}, radio)
	})

	t.Run("skip rows", func(t *testing.T) {
		path := writeXLSX(t, [][]string{
			{"Household indicators, 2019"},
			{"source: census"},
			{"TS", "RADIO"},
			{"TS01", "850"},
		})

		tbl, err := ReadXLSX(path, XLSXOptions{SkipRows: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "RADIO"}, tbl.Columns())
		assert.Equal(t, 1, tbl.NumRows())
	})

	t.Run("blank rows dropped", func(t *testing.T) {
		path := writeXLSX(t, [][]string{
			{"TS", "RADIO"},
			{"TS01", "850"},
			{"", ""},
			{"TS02", "430"},
		})

		tbl, err := ReadXLSX(path, XLSXOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.NumRows())
	})

	t.Run("short rows padded", func(t *testing.T) {
		path := writeXLSX(t, [][]string{
			{"TS", "RADIO", "NOTE"},
			{"TS01", "850"},
		})

		tbl, err := ReadXLSX(path, XLSXOptions{})
		require.NoError(t, err)

		note, err := tbl.Cell(0, "NOTE")
		require.NoError(t, err)
		assert.Equal(t, "", note)
	})

	t.Run("sheet by name and index", func(t *testing.T) {
		f := xlsx.NewFile()
		notes, err := f.AddSheet("Notes")
		require.NoError(t, err)
		fillSheet(notes, [][]string{{"do not use"}})
		ind, err := f.AddSheet("Indicators")
		require.NoError(t, err)
		fillSheet(ind, [][]string{
			{"TS", "TV"},
			{"TS01", "1200"},
		})
		path := filepath.Join(t.TempDir(), "multi.xlsx")
		require.NoError(t, f.Save(path))

		byName, err := ReadXLSX(path, XLSXOptions{SheetName: "Indicators"})
		require.NoError(t, err)
		assert.Equal(t, []string{"TS", "TV"}, byName.Columns())

		byIndex, err := ReadXLSX(path, XLSXOptions{SheetIndex: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, byIndex.NumRows())
	})

	t.Run("sheet name not found", func(t *testing.T) {
		path := writeXLSX(t, [][]string{{"TS"}, {"TS01"}})

		_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("sheet index out of range", func(t *testing.T) {
		path := writeXLSX(t, [][]string{{"TS"}, {"TS01"}})

		_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("header only", func(t *testing.T) {
		path := writeXLSX(t, [][]string{{"TS", "RADIO"}})

		_, err := ReadXLSX(path, XLSXOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no rows")
	})

	t.Run("skip past last row", func(t *testing.T) {
		path := writeXLSX(t, [][]string{{"TS"}, {"TS01"}})

		_, err := ReadXLSX(path, XLSXOptions{SkipRows: 10})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no header")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadXLSX(filepath.Join(t.TempDir(), "absent.xlsx"), XLSXOptions{})
		require.Error(t, err)
	})
}
