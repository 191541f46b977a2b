package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drkrodriguez/ISSS626-GAA/internal/attribute"
	"github.com/drkrodriguez/ISSS626-GAA/internal/cluster"
	"github.com/drkrodriguez/ISSS626-GAA/internal/evaluate"
	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// Inputs are the loaded source tables for one run. Loading from disk or
// network belongs to the callers; the pipeline itself is a pure function
// of these inputs and the params.
type Inputs struct {
	Geo   *geodata.Table
	Attrs *attribute.Table
	Vars  *feature.VarSpec
}

// Assignment is one variant's final labeling, aligned with the joined
// region order.
type Assignment struct {
	Variant string `json:"variant"`
	Labels  []int  `json:"labels"`
}

// Result carries every artifact of a completed run.
type Result struct {
	RunID    string
	Params   Params
	Started  time.Time
	Elapsed  time.Duration
	Warnings []string

	Features  *feature.Table
	Matrix    *feature.Matrix
	Dropped   []feature.Dropped
	Collinear []feature.CollinearPair

	Distances    *weights.DistMatrix
	Neighborhood *weights.Neighborhood
	Forest       *weights.SpanningForest

	Linkages []cluster.LinkageCoefficient
	Gap      *cluster.GapResult
	ChosenK  int
	Skater   *cluster.SkaterResult
	Blend    *cluster.BlendResult

	Assignments   []Assignment
	Summaries     map[string][]evaluate.ClusterSummary
	Fragmentation map[string]*evaluate.FragmentationReport
	Scores        []evaluate.VariantScore
}

// Run executes the full pipeline. Parameter and data validation fail fast;
// data-quality findings that do not invalidate the run accumulate as
// warnings on the result.
func Run(ctx context.Context, in Inputs, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:   uuid.NewString(),
		Params:  p,
		Started: time.Now(),
	}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", res.RunID),
	)
	log.Info("run started",
		zap.String("metric", p.Metric),
		zap.String("rule", p.Rule),
		zap.String("linkage", p.Linkage),
		zap.Int("k", p.K),
	)

	// stage 1: join and derive
	policy, _ := feature.ParseJoinPolicy(p.JoinPolicy)
	ft, err := feature.Build(in.Geo, in.Attrs, p.Key, in.Vars, policy)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: feature stage")
	}
	res.Features = ft
	res.Warnings = append(res.Warnings, ft.Warnings...)

	res.Collinear, err = feature.FlagCollinear(ft, nil, p.CollinearThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: collinearity scan")
	}
	for _, pair := range res.Collinear {
		log.Info("collinear columns flagged",
			zap.String("a", pair.A),
			zap.String("b", pair.B),
			zap.Float64("r", pair.Correlation),
		)
	}

	// stage 2: standardize
	mode, _ := feature.ParseMode(p.Standardize)
	fm, dropped, err := feature.Standardize(ft, nil, mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: standardize stage")
	}
	res.Matrix = fm
	res.Dropped = dropped
	for _, d := range dropped {
		res.Warnings = append(res.Warnings, fmt.Sprintf("excluded zero-variance column %q (constant %g)", d.Column, d.Value))
	}

	n := fm.Len()
	if err := p.ValidateN(n); err != nil {
		return nil, err
	}

	// stage 3: dissimilarity matrix and contiguity structure in parallel
	rule, _ := weights.ParseRule(p.Rule, p.Band, p.KNN)
	var dGeo *weights.DistMatrix
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := weights.Distances(gctx, fm, weights.DistanceOptions{
			Metric:  weights.Metric(p.Metric),
			P:       p.MinkowskiP,
			Workers: p.Workers,
		})
		if err != nil {
			return err
		}
		res.Distances = d
		return nil
	})
	g.Go(func() error {
		nb, err := weights.BuildNeighborhood(ft.Geometry(), rule)
		if err != nil {
			return err
		}
		res.Neighborhood = nb
		if p.wants(VariantGeoBlend) {
			dGeo, err = weights.CentroidDistances(ft.Geometry())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: proximity stage")
	}

	isolated := 0
	for i := 0; i < res.Neighborhood.Len(); i++ {
		if len(res.Neighborhood.AdjacentIdx(i)) == 0 {
			isolated++
		}
	}
	if isolated > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d regions have no %s neighbors", isolated, p.Rule))
	}

	cg, err := weights.AttachCosts(res.Neighborhood, res.Distances)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: proximity stage")
	}
	res.Forest = weights.MinimumSpanningForest(cg)
	if res.Forest.Components() > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("contiguity graph is disconnected (%d components); spanning forest built per component", res.Forest.Components()))
	}

	// stage 4: cluster variants
	linkage, _ := cluster.ParseLinkage(p.Linkage)
	dendro, err := cluster.Agglomerate(res.Distances, linkage)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: agglomeration")
	}
	res.Linkages, err = cluster.CompareLinkages(res.Distances, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: linkage comparison")
	}

	res.ChosenK = p.K
	if res.ChosenK == 0 {
		res.Gap, err = cluster.GapStatistic(ctx, fm, res.Distances, dendro, weights.DistanceOptions{
			Metric: weights.Metric(p.Metric),
			P:      p.MinkowskiP,
		}, cluster.GapOptions{
			MaxK:    p.GapMaxK,
			B:       p.GapB,
			Seed:    p.Seed,
			Workers: p.Workers,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: gap statistic")
		}
		res.ChosenK = res.Gap.ChosenK
	}

	if p.wants(VariantHierarchical) {
		labels, err := dendro.Cut(res.ChosenK)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: hierarchical cut")
		}
		res.Assignments = append(res.Assignments, Assignment{Variant: VariantHierarchical, Labels: labels})
	}
	if p.wants(VariantSkater) {
		sk, err := cluster.Skater(ctx, res.Forest, fm, cluster.SkaterOptions{K: res.ChosenK, MinSize: p.MinSize})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: skater")
		}
		res.Skater = sk
		res.Assignments = append(res.Assignments, Assignment{Variant: VariantSkater, Labels: sk.Labels})
	}
	if p.wants(VariantGeoBlend) {
		grid := cluster.DefaultAlphaGrid()
		if p.Alpha >= 0 {
			grid = []float64{p.Alpha}
		}
		blend, err := cluster.BlendScan(ctx, res.Distances, dGeo, res.ChosenK, grid, p.Workers)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: blended clustering")
		}
		res.Blend = blend
		res.Assignments = append(res.Assignments, Assignment{Variant: VariantGeoBlend, Labels: blend.Labels})
	}
	if len(res.Assignments) == 0 {
		return nil, eris.New("pipeline: no variants selected")
	}

	// stage 5: evaluate
	res.Summaries = make(map[string][]evaluate.ClusterSummary, len(res.Assignments))
	res.Fragmentation = make(map[string]*evaluate.FragmentationReport, len(res.Assignments))
	variants := make([]evaluate.Variant, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		sums, err := evaluate.Summarize(ft, a.Labels)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: summarize %s", a.Variant)
		}
		res.Summaries[a.Variant] = sums

		frag, err := evaluate.Fragmentation(a.Labels, res.Neighborhood)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: fragmentation %s", a.Variant)
		}
		res.Fragmentation[a.Variant] = frag
		variants = append(variants, evaluate.Variant{Name: a.Variant, Labels: a.Labels})
	}
	res.Scores, err = evaluate.Compare(fm, res.Neighborhood, variants)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: variant comparison")
	}

	res.Elapsed = time.Since(res.Started)
	log.Info("run complete",
		zap.Int("regions", n),
		zap.Int("chosen_k", res.ChosenK),
		zap.Int("variants", len(res.Assignments)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// LoadInputs reads the three input files for a run. The geometry path may
// be a shapefile or GeoJSON, decided by extension; the attribute path a
// delimited file or workbook. An empty vars path skips derivations.
func LoadInputs(geoPath, attrPath, varsPath string, geoOpts GeoOptions, attrOpts AttrOptions) (Inputs, error) {
	var in Inputs
	var err error

	switch ext(geoPath) {
	case ".shp":
		in.Geo, err = geodata.ReadShapefile(geoPath, geodata.ShapefileOptions{
			IDField:   geoOpts.IDField,
			NameField: geoOpts.NameField,
			CRS:       geoOpts.CRS,
		})
	case ".geojson", ".json":
		in.Geo, err = geodata.ReadGeoJSONFile(geoPath, geodata.GeoJSONOptions{
			IDProperty:   geoOpts.IDField,
			NameProperty: geoOpts.NameField,
			CRS:          geoOpts.CRS,
		})
	default:
		return in, eris.Errorf("pipeline: unsupported geometry format %q (use .shp, .geojson, or .json)", geoPath)
	}
	if err != nil {
		return in, err
	}

	switch ext(attrPath) {
	case ".csv", ".txt", ".tsv":
		delim := firstRune(attrOpts.Delimiter)
		if delim == 0 && ext(attrPath) == ".tsv" {
			delim = '\t'
		}
		in.Attrs, err = attribute.ReadCSVFile(attrPath, attribute.CSVOptions{
			Delimiter: delim,
			Encoding:  attrOpts.Encoding,
		})
	case ".xlsx":
		in.Attrs, err = attribute.ReadXLSX(attrPath, attribute.XLSXOptions{
			SheetName: attrOpts.Sheet,
			SkipRows:  attrOpts.SkipRows,
		})
	default:
		return in, eris.Errorf("pipeline: unsupported attribute format %q (use .csv, .txt, .tsv, or .xlsx)", attrPath)
	}
	if err != nil {
		return in, err
	}

	if varsPath != "" {
		in.Vars, err = feature.LoadVarSpec(varsPath)
		if err != nil {
			return in, err
		}
	}
	return in, nil
}

// GeoOptions select id and name sources when loading geometry.
type GeoOptions struct {
	IDField   string
	NameField string
	CRS       string
}

// AttrOptions shape attribute-file parsing.
type AttrOptions struct {
	Delimiter string
	Encoding  string
	Sheet     string
	SkipRows  int
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func firstRune(s string) rune {
	if s == "" {
		return 0
	}
	return []rune(s)[0]
}
