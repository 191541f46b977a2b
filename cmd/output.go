package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
	"github.com/drkrodriguez/ISSS626-GAA/internal/pipeline"
)

// formatRunResult writes the run overview: the join outcome, the variant
// scoreboard, and any warnings.
func formatRunResult(out io.Writer, res *pipeline.Result) {
	doc := res.Document()

	fmt.Fprintf(out, "Run %s: %d regions, %d features, k=%d (%.1fs)\n",
		truncateID(doc.RunID), doc.Regions, len(doc.Columns), doc.ChosenK,
		float64(doc.ElapsedMS)/1000)
	fmt.Fprintf(out, "Contiguity: %s, %d links, %d component(s)\n", doc.Rule, doc.Links, doc.Components)

	if len(doc.Scores) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VARIANT\tK\tWITHIN_SSD\tFRAGMENTATION")
		for _, s := range doc.Scores {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%.4f\t%d\n", s.Variant, s.K, s.WithinSSD, s.Fragmentation)
		}
		_ = w.Flush()
	}

	for _, a := range res.Assignments {
		sizes := clusterSizes(a.Labels)
		fmt.Fprintf(out, "%s cluster sizes: %v\n", a.Variant, sizes)
	}

	if len(doc.Warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, warn := range doc.Warnings {
			fmt.Fprintf(out, "  - %s\n", warn)
		}
	}
}

// clusterSizes counts members per label, indexed 1..k.
func clusterSizes(labels []int) []int {
	k := 0
	for _, l := range labels {
		if l > k {
			k = l
		}
	}
	sizes := make([]int, k)
	for _, l := range labels {
		if l >= 1 {
			sizes[l-1]++
		}
	}
	return sizes
}

// writeLabelsFile writes one CSV row per region with a label column per
// variant, in region order.
func writeLabelsFile(path string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create labels file %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := []string{"region_id", "name"}
	for _, a := range res.Assignments {
		header = append(header, a.Variant)
	}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "write labels header")
	}

	geo := res.Features.Geometry()
	for i, r := range geo.Regions {
		row := []string{r.ID, r.Name}
		for _, a := range res.Assignments {
			row = append(row, strconv.Itoa(a.Labels[i]))
		}
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "write labels row %s", r.ID)
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush labels file")
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tSTATUS\tK\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		if !r.Terminal() {
			dur = ""
		}

		k := ""
		if r.ChosenK > 0 {
			k = strconv.Itoa(r.ChosenK)
		}

		dataset := r.Dataset
		if len(dataset) > 30 {
			dataset = dataset[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			dataset,
			r.Status,
			k,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRegionsList writes the per-region labels of one run to w, one
// column per stored variant.
func formatRegionsList(out io.Writer, regions []model.RunRegion, variants []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := "REGION\tNAME"
	for _, v := range variants {
		header += "\t" + v
	}
	_, _ = fmt.Fprintln(w, header)

	for _, r := range regions {
		line := r.RegionID + "\t" + r.Name
		for _, v := range variants {
			if l, ok := r.Label(v); ok {
				line += "\t" + strconv.Itoa(l)
			} else {
				line += "\t"
			}
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
