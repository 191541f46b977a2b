package pipeline

import (
	"time"

	"github.com/drkrodriguez/ISSS626-GAA/internal/cluster"
	"github.com/drkrodriguez/ISSS626-GAA/internal/evaluate"
	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
)

// Document is the persistable view of a Result: the reports, scans, and
// scores, without the feature matrix, distance matrix, or spanning forest.
// Labels are not duplicated here either; they are stored per region
// alongside the geometry.
type Document struct {
	RunID     string    `json:"run_id"`
	Started   time.Time `json:"started"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Warnings  []string  `json:"warnings,omitempty"`

	Regions   int                     `json:"regions"`
	Columns   []string                `json:"columns,omitempty"`
	Join      feature.JoinReport      `json:"join"`
	Dropped   []feature.Dropped       `json:"dropped,omitempty"`
	Collinear []feature.CollinearPair `json:"collinear,omitempty"`

	Rule       string  `json:"rule,omitempty"`
	Links      int     `json:"links"`
	Components int     `json:"components"`
	ForestCost float64 `json:"forest_cost,omitempty"`

	Linkages []cluster.LinkageCoefficient `json:"linkages,omitempty"`
	Gap      *cluster.GapResult           `json:"gap,omitempty"`
	ChosenK  int                          `json:"chosen_k"`
	Blend    *cluster.BlendResult         `json:"blend,omitempty"`
	Skater   *SkaterSummary               `json:"skater,omitempty"`

	Summaries     map[string][]evaluate.ClusterSummary     `json:"summaries,omitempty"`
	Fragmentation map[string]*evaluate.FragmentationReport `json:"fragmentation,omitempty"`
	Scores        []evaluate.VariantScore                  `json:"scores,omitempty"`
}

// SkaterSummary compacts a SkaterResult for storage: the cut edges by
// region id plus the SSD trajectory, one entry per partition size.
type SkaterSummary struct {
	Cuts []CutEdge `json:"cuts"`
	SSD  []float64 `json:"ssd"`
}

// CutEdge is one removed spanning-forest edge.
type CutEdge struct {
	U    string  `json:"u"`
	V    string  `json:"v"`
	Cost float64 `json:"cost"`
}

// Document flattens the result for storage and transport. Matrices and
// label vectors are omitted; everything else round-trips through JSON.
func (r *Result) Document() *Document {
	doc := &Document{
		RunID:         r.RunID,
		Started:       r.Started,
		ElapsedMS:     r.Elapsed.Milliseconds(),
		Warnings:      r.Warnings,
		Dropped:       r.Dropped,
		Collinear:     r.Collinear,
		Linkages:      r.Linkages,
		Gap:           r.Gap,
		ChosenK:       r.ChosenK,
		Blend:         r.Blend,
		Summaries:     r.Summaries,
		Fragmentation: r.Fragmentation,
		Scores:        r.Scores,
	}
	if r.Features != nil {
		doc.Regions = r.Features.Len()
		doc.Join = r.Features.Report
	}
	if r.Matrix != nil {
		doc.Columns = r.Matrix.Columns()
	}
	if r.Neighborhood != nil {
		doc.Rule = r.Neighborhood.Rule()
		doc.Links = r.Neighborhood.NumLinks()
		doc.Components = len(r.Neighborhood.Components())
	}
	if r.Forest != nil {
		doc.ForestCost = r.Forest.TotalCost()
	}
	if r.Skater != nil {
		s := &SkaterSummary{SSD: r.Skater.SSD, Cuts: make([]CutEdge, 0, len(r.Skater.Removed))}
		for _, e := range r.Skater.Removed {
			s.Cuts = append(s.Cuts, CutEdge{U: e.UID, V: e.VID, Cost: e.Weight})
		}
		doc.Skater = s
	}
	return doc
}
