package main

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/drkrodriguez/ISSS626-GAA/internal/pipeline"
)

// writeResultCSV emits the variant comparison table and the long-form
// cluster summaries as two CSV sections separated by a blank line.
func writeResultCSV(out io.Writer, res *pipeline.Result) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"variant", "k", "within_ssd", "fragmentation"}); err != nil {
		return eris.Wrap(err, "write scores header")
	}
	for _, s := range res.Scores {
		rec := []string{
			s.Variant,
			strconv.Itoa(s.K),
			strconv.FormatFloat(s.WithinSSD, 'f', -1, 64),
			strconv.Itoa(s.Fragmentation),
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "write scores row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "flush scores")
	}

	if _, err := io.WriteString(out, "\n"); err != nil {
		return eris.Wrap(err, "write section break")
	}

	w = csv.NewWriter(out)
	if err := w.Write([]string{"variant", "label", "size", "column", "mean", "median", "std_dev"}); err != nil {
		return eris.Wrap(err, "write summaries header")
	}
	for _, variant := range summaryVariants(res) {
		for _, cs := range res.Summaries[variant] {
			for _, col := range cs.Columns {
				rec := []string{
					variant,
					strconv.Itoa(cs.Label),
					strconv.Itoa(cs.Size),
					col.Column,
					strconv.FormatFloat(col.Mean, 'f', -1, 64),
					strconv.FormatFloat(col.Median, 'f', -1, 64),
					strconv.FormatFloat(col.StdDev, 'f', -1, 64),
				}
				if err := w.Write(rec); err != nil {
					return eris.Wrap(err, "write summaries row")
				}
			}
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush summaries")
}

// writeResultXLSX writes a workbook with the comparison table, the cluster
// summaries, and the per-region labels on separate sheets.
func writeResultXLSX(path string, res *pipeline.Result) error {
	f := xlsx.NewFile()

	scores, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "add scores sheet")
	}
	addStringRow(scores, "variant", "k", "within_ssd", "fragmentation")
	for _, s := range res.Scores {
		row := scores.AddRow()
		row.AddCell().SetString(s.Variant)
		row.AddCell().SetInt(s.K)
		row.AddCell().SetFloat(s.WithinSSD)
		row.AddCell().SetInt(s.Fragmentation)
	}

	summaries, err := f.AddSheet("Summaries")
	if err != nil {
		return eris.Wrap(err, "add summaries sheet")
	}
	addStringRow(summaries, "variant", "label", "size", "column", "mean", "median", "std_dev")
	for _, variant := range summaryVariants(res) {
		for _, cs := range res.Summaries[variant] {
			for _, col := range cs.Columns {
				row := summaries.AddRow()
				row.AddCell().SetString(variant)
				row.AddCell().SetInt(cs.Label)
				row.AddCell().SetInt(cs.Size)
				row.AddCell().SetString(col.Column)
				row.AddCell().SetFloat(col.Mean)
				row.AddCell().SetFloat(col.Median)
				row.AddCell().SetFloat(col.StdDev)
			}
		}
	}

	labels, err := f.AddSheet("Labels")
	if err != nil {
		return eris.Wrap(err, "add labels sheet")
	}
	header := labels.AddRow()
	header.AddCell().SetString("region_id")
	header.AddCell().SetString("name")
	for _, a := range res.Assignments {
		header.AddCell().SetString(a.Variant)
	}
	for i, r := range res.Features.Geometry().Regions {
		row := labels.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Name)
		for _, a := range res.Assignments {
			row.AddCell().SetInt(a.Labels[i])
		}
	}

	return eris.Wrapf(f.Save(path), "save workbook %s", path)
}

func addStringRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// summaryVariants returns the summarized variant names in stable order.
func summaryVariants(res *pipeline.Result) []string {
	variants := make([]string, 0, len(res.Summaries))
	for v := range res.Summaries {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}
