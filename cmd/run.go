package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/config"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
	"github.com/drkrodriguez/ISSS626-GAA/internal/pipeline"
)

var (
	runGeometry   string
	runAttributes string
	runVars       string
	runDataset    string
	runIDField    string
	runNameField  string
	runCRS        string
	runDelimiter  string
	runSheet      string
	runSkipRows   int
	runKey        string
	runNoStore    bool
	runLabelsOut  string
	runFormat     string
	runOut        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clustering pipeline on one dataset",
	Long:  "Joins the geometry and attribute files, standardizes the indicators, and produces the configured cluster variants. Results are persisted unless --no-store is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		p := paramsFromConfig(cfg.Pipeline)
		p.Key = runKey
		applyParamFlags(cmd.Flags(), &p)
		if err := p.Validate(); err != nil {
			return err
		}

		in, err := pipeline.LoadInputs(runGeometry, runAttributes, runVars,
			pipeline.GeoOptions{IDField: runIDField, NameField: runNameField, CRS: runCRS},
			pipeline.AttrOptions{Delimiter: runDelimiter, Sheet: runSheet, SkipRows: runSkipRows},
		)
		if err != nil {
			return err
		}

		dataset := runDataset
		if dataset == "" {
			base := filepath.Base(runGeometry)
			dataset = strings.TrimSuffix(base, filepath.Ext(base))
		}

		if runNoStore {
			res, err := pipeline.Run(ctx, in, p)
			if err != nil {
				return eris.Wrap(err, "pipeline run")
			}
			return emitRun(res)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		paramsJSON, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "marshal params")
		}
		run, err := st.CreateRun(ctx, dataset, paramsJSON)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		res, err := pipeline.Run(ctx, in, p)
		if err != nil {
			if ferr := st.FailRun(ctx, run.ID, err.Error()); ferr != nil {
				zap.L().Warn("recording run failure", zap.Error(ferr))
			}
			return eris.Wrap(err, "pipeline run")
		}

		// The store row id is authoritative once persisted.
		res.RunID = run.ID

		docJSON, err := json.Marshal(res.Document())
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		regions, err := buildRunRegions(run.ID, res)
		if err != nil {
			return err
		}
		if err := st.CompleteRun(ctx, run.ID, docJSON, res.ChosenK, regions); err != nil {
			return eris.Wrap(err, "complete run")
		}

		zap.L().Info("run stored",
			zap.String("run_id", run.ID),
			zap.String("dataset", dataset),
			zap.Int("k", res.ChosenK),
			zap.Int("regions", len(regions)),
		)

		return emitRun(res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runGeometry, "geometry", "", "region boundary file (.shp, .geojson)")
	runCmd.Flags().StringVar(&runAttributes, "attributes", "", "attribute table (.csv, .tsv, .xlsx)")
	runCmd.Flags().StringVar(&runVars, "vars", "", "variable definition file (rates, keep list)")
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "dataset name for the store (default: geometry file base name)")
	runCmd.Flags().StringVar(&runIDField, "id-field", "", "geometry property holding the region id")
	runCmd.Flags().StringVar(&runNameField, "name-field", "", "geometry property holding the region name")
	runCmd.Flags().StringVar(&runCRS, "crs", "", "coordinate reference system tag (e.g. EPSG:3414)")
	runCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "attribute field delimiter (default comma, tab for .tsv)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "workbook sheet name (xlsx only)")
	runCmd.Flags().IntVar(&runSkipRows, "skip-rows", 0, "header rows to skip before the column row")
	runCmd.Flags().StringVar(&runKey, "key", "", "attribute column joined against the region id (required)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "print results without persisting them")
	runCmd.Flags().StringVar(&runLabelsOut, "labels-out", "", "write the per-region labels to this CSV file")
	runCmd.Flags().StringVar(&runFormat, "format", "table", "output format (table, json, csv, xlsx)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output file for csv/xlsx (csv defaults to stdout, xlsx requires it)")
	addParamFlags(runCmd.Flags())
	_ = runCmd.MarkFlagRequired("geometry")
	_ = runCmd.MarkFlagRequired("attributes")
	_ = runCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(runCmd)
}

// addParamFlags declares the pipeline parameter flags shared by run and the
// inspection commands. Defaults shown in --help are the shipped config
// defaults; the effective default is whatever the loaded config says, so
// only flags the user actually set override it.
func addParamFlags(f *pflag.FlagSet) {
	f.String("join-policy", "inner", "join policy (inner, left)")
	f.String("standardize", "minmax", "standardization mode (minmax, zscore)")
	f.Float64("collinear-threshold", 0.8, "absolute correlation at which a pair is flagged")
	f.String("metric", "euclidean", "attribute distance metric (euclidean, manhattan, minkowski)")
	f.Float64("minkowski-p", 3, "Minkowski order (metric=minkowski only)")
	f.String("rule", "queen", "contiguity rule (queen, rook, distance-band, knn)")
	f.Float64("band", 0, "distance band in CRS units (rule=distance-band)")
	f.Int("knn", 8, "neighbor count (rule=knn)")
	f.String("linkage", "ward", "agglomeration linkage (ward, single, complete, average)")
	f.Int("k", 0, "cluster count (0 selects k by the gap statistic)")
	f.Int("gap-max-k", 10, "largest k scanned by the gap statistic")
	f.Int("gap-b", 50, "reference datasets per gap scan point")
	f.Int("min-size", 1, "smallest admissible cluster (skater)")
	f.Float64("alpha", -1, "attribute/geography mix (geoblend; negative scans the grid)")
	f.StringSlice("variants", nil, "cluster variants to produce (default all)")
	f.Int64("seed", 42, "random seed for the gap statistic reference draws")
	f.Int("workers", 0, "parallel workers (0 = GOMAXPROCS)")
}

// paramsFromConfig seeds run parameters from the loaded configuration.
func paramsFromConfig(pc config.PipelineConfig) pipeline.Params {
	return pipeline.Params{
		JoinPolicy:         pc.JoinPolicy,
		Standardize:        pc.Standardize,
		CollinearThreshold: pc.CollinearThreshold,
		Metric:             pc.Metric,
		MinkowskiP:         pc.MinkowskiP,
		Rule:               pc.Rule,
		Band:               pc.DistanceBand,
		KNN:                pc.KNN,
		Linkage:            pc.Linkage,
		K:                  pc.K,
		GapMaxK:            pc.GapMaxK,
		GapB:               pc.GapB,
		MinSize:            pc.MinSize,
		Alpha:              pc.Alpha,
		Seed:               pc.Seed,
		Workers:            pc.Workers,
	}
}

// applyParamFlags overrides parameters with explicitly set flags.
func applyParamFlags(f *pflag.FlagSet, p *pipeline.Params) {
	if f.Changed("join-policy") {
		p.JoinPolicy, _ = f.GetString("join-policy")
	}
	if f.Changed("standardize") {
		p.Standardize, _ = f.GetString("standardize")
	}
	if f.Changed("collinear-threshold") {
		p.CollinearThreshold, _ = f.GetFloat64("collinear-threshold")
	}
	if f.Changed("metric") {
		p.Metric, _ = f.GetString("metric")
	}
	if f.Changed("minkowski-p") {
		p.MinkowskiP, _ = f.GetFloat64("minkowski-p")
	}
	if f.Changed("rule") {
		p.Rule, _ = f.GetString("rule")
	}
	if f.Changed("band") {
		p.Band, _ = f.GetFloat64("band")
	}
	if f.Changed("knn") {
		p.KNN, _ = f.GetInt("knn")
	}
	if f.Changed("linkage") {
		p.Linkage, _ = f.GetString("linkage")
	}
	if f.Changed("k") {
		p.K, _ = f.GetInt("k")
	}
	if f.Changed("gap-max-k") {
		p.GapMaxK, _ = f.GetInt("gap-max-k")
	}
	if f.Changed("gap-b") {
		p.GapB, _ = f.GetInt("gap-b")
	}
	if f.Changed("min-size") {
		p.MinSize, _ = f.GetInt("min-size")
	}
	if f.Changed("alpha") {
		p.Alpha, _ = f.GetFloat64("alpha")
	}
	if f.Changed("variants") {
		p.Variants, _ = f.GetStringSlice("variants")
	}
	if f.Changed("seed") {
		p.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("workers") {
		p.Workers, _ = f.GetInt("workers")
	}
}

// buildRunRegions pairs each joined region's geometry with its labels
// across variants, in region order.
func buildRunRegions(runID string, res *pipeline.Result) ([]model.RunRegion, error) {
	geo := res.Features.Geometry()
	regions := make([]model.RunRegion, 0, geo.Len())
	for i, r := range geo.Regions {
		ewkb, err := geodata.EncodeEWKB(r.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "encode region %s", r.ID)
		}
		labels := make(map[string]int, len(res.Assignments))
		for _, a := range res.Assignments {
			labels[a.Variant] = a.Labels[i]
		}
		regions = append(regions, model.RunRegion{
			RunID:    runID,
			RegionID: r.ID,
			Name:     r.Name,
			Labels:   labels,
			Geometry: ewkb,
		})
	}
	return regions, nil
}

// emitRun renders the result and writes the optional labels file.
func emitRun(res *pipeline.Result) error {
	if runLabelsOut != "" {
		if err := writeLabelsFile(runLabelsOut, res); err != nil {
			return err
		}
	}

	switch runFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Document())
	case "table":
		formatRunResult(os.Stdout, res)
		return nil
	case "csv":
		if runOut == "" {
			return writeResultCSV(os.Stdout, res)
		}
		f, err := os.Create(runOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", runOut)
		}
		defer f.Close() //nolint:errcheck
		return writeResultCSV(f, res)
	case "xlsx":
		if runOut == "" {
			return eris.New("--format xlsx needs --out <file>")
		}
		return writeResultXLSX(runOut, res)
	}
	return eris.Errorf("unknown format %q (use table, json, csv, or xlsx)", runFormat)
}
