package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/pipeline"
)

var (
	featGeometry   string
	featAttributes string
	featVars       string
	featIDField    string
	featNameField  string
	featCRS        string
	featDelimiter  string
	featSheet      string
	featSkipRows   int
	featKey        string
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Inspect the joined feature table without clustering",
	Long:  "Runs the join, derivation, and standardization stages, then prints the join report, per-column statistics, zero-variance exclusions, and collinear pairs. Useful for vetting inputs before a full run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paramsFromConfig(cfg.Pipeline)
		p.Key = featKey
		applyParamFlags(cmd.Flags(), &p)

		in, err := pipeline.LoadInputs(featGeometry, featAttributes, featVars,
			pipeline.GeoOptions{IDField: featIDField, NameField: featNameField, CRS: featCRS},
			pipeline.AttrOptions{Delimiter: featDelimiter, Sheet: featSheet, SkipRows: featSkipRows},
		)
		if err != nil {
			return err
		}

		policy, err := feature.ParseJoinPolicy(p.JoinPolicy)
		if err != nil {
			return err
		}
		ft, err := feature.Build(in.Geo, in.Attrs, p.Key, in.Vars, policy)
		if err != nil {
			return err
		}

		collinear, err := feature.FlagCollinear(ft, nil, p.CollinearThreshold)
		if err != nil {
			return err
		}
		fm, dropped, err := feature.Standardize(ft, nil, feature.Mode(p.Standardize))
		if err != nil {
			return err
		}

		formatFeatureReport(os.Stdout, ft, fm.Columns(), dropped, collinear)
		return nil
	},
}

func init() {
	featuresCmd.Flags().StringVar(&featGeometry, "geometry", "", "region boundary file (.shp, .geojson)")
	featuresCmd.Flags().StringVar(&featAttributes, "attributes", "", "attribute table (.csv, .tsv, .xlsx)")
	featuresCmd.Flags().StringVar(&featVars, "vars", "", "variable definition file (rates, keep list)")
	featuresCmd.Flags().StringVar(&featIDField, "id-field", "", "geometry property holding the region id")
	featuresCmd.Flags().StringVar(&featNameField, "name-field", "", "geometry property holding the region name")
	featuresCmd.Flags().StringVar(&featCRS, "crs", "", "coordinate reference system tag")
	featuresCmd.Flags().StringVar(&featDelimiter, "delimiter", "", "attribute field delimiter")
	featuresCmd.Flags().StringVar(&featSheet, "sheet", "", "workbook sheet name (xlsx only)")
	featuresCmd.Flags().IntVar(&featSkipRows, "skip-rows", 0, "header rows to skip before the column row")
	featuresCmd.Flags().StringVar(&featKey, "key", "", "attribute column joined against the region id (required)")
	addParamFlags(featuresCmd.Flags())
	_ = featuresCmd.MarkFlagRequired("geometry")
	_ = featuresCmd.MarkFlagRequired("attributes")
	_ = featuresCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(featuresCmd)
}

// formatFeatureReport prints the join outcome and a per-column profile of
// the raw values.
func formatFeatureReport(out io.Writer, ft *feature.Table, kept []string, dropped []feature.Dropped, collinear []feature.CollinearPair) {
	rep := ft.Report
	fmt.Fprintf(out, "Join (%s): %d matched, %d geometry-only, %d attribute-only\n",
		rep.Policy, rep.Matched, rep.GeometryOnly, rep.AttributeOnly)
	for _, w := range ft.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tMEAN\tSTDDEV\tMIN\tMAX\tKEPT")
	for _, col := range ft.Columns() {
		vals, err := ft.Column(col)
		if err != nil {
			continue
		}
		mean, std := stat.MeanStdDev(vals, nil)
		mn, mx := vals[0], vals[0]
		for _, v := range vals {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		keptMark := ""
		for _, k := range kept {
			if k == col {
				keptMark = "yes"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\t%.4g\t%s\n", col, mean, std, mn, mx, keptMark)
	}
	_ = w.Flush()

	if len(dropped) > 0 {
		fmt.Fprintln(out, "\nExcluded (zero variance):")
		for _, d := range dropped {
			fmt.Fprintf(out, "  %s (constant %g)\n", d.Column, d.Value)
		}
	}
	if len(collinear) > 0 {
		fmt.Fprintln(out, "\nCollinear pairs:")
		for _, c := range collinear {
			fmt.Fprintf(out, "  %s ~ %s (r=%.3f)\n", c.A, c.B, c.Correlation)
		}
	}
}
