// Package pipeline sequences the full run: feature building,
// standardization, proximity and adjacency construction, the cluster
// variants, and evaluation. Parameters are validated eagerly so a bad run
// dies before any heavy stage starts.
package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/cluster"
	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// Variant names for Params.Variants.
const (
	VariantHierarchical = "hierarchical"
	VariantSkater       = "skater"
	VariantGeoBlend     = "geoblend"
)

// AllVariants lists the cluster variants in run order.
func AllVariants() []string {
	return []string{VariantHierarchical, VariantSkater, VariantGeoBlend}
}

// Params is the full configuration of one run. Zero values fall back to
// the documented defaults where one exists; enumerations are validated as
// written.
type Params struct {
	Key        string `json:"key"`
	JoinPolicy string `json:"join_policy"`

	Standardize        string  `json:"standardize"`
	CollinearThreshold float64 `json:"collinear_threshold"`

	Metric     string  `json:"metric"`
	MinkowskiP float64 `json:"minkowski_p,omitempty"`

	Rule string  `json:"rule"`
	Band float64 `json:"band,omitempty"`
	KNN  int     `json:"knn,omitempty"`

	Linkage string  `json:"linkage"`
	K       int     `json:"k"` // 0 selects k by gap statistic
	GapMaxK int     `json:"gap_max_k"`
	GapB    int     `json:"gap_b"`
	MinSize int     `json:"min_size"`
	Alpha   float64 `json:"alpha"` // negative scans the default grid

	Variants []string `json:"variants"`
	Seed     int64    `json:"seed"`
	Workers  int      `json:"workers,omitempty"`
}

// Validate checks everything checkable before any data is loaded.
func (p *Params) Validate() error {
	if p.Key == "" {
		return eris.New("pipeline: join key is required")
	}
	if _, err := feature.ParseJoinPolicy(p.JoinPolicy); err != nil {
		return err
	}
	if _, err := feature.ParseMode(p.Standardize); err != nil {
		return err
	}
	if p.CollinearThreshold <= 0 || p.CollinearThreshold > 1 {
		return eris.Errorf("pipeline: collinear threshold must lie in (0, 1], got %g", p.CollinearThreshold)
	}
	dopts := weights.DistanceOptions{Metric: weights.Metric(p.Metric), P: p.MinkowskiP}
	if err := dopts.Validate(); err != nil {
		return err
	}
	if _, err := weights.ParseRule(p.Rule, p.Band, p.KNN); err != nil {
		return err
	}
	if _, err := cluster.ParseLinkage(p.Linkage); err != nil {
		return err
	}
	if p.K < 0 {
		return eris.Errorf("pipeline: k must be positive or 0 for automatic selection, got %d", p.K)
	}
	if p.K == 1 {
		return eris.New("pipeline: k=1 is not a clustering, use k >= 2 or 0 for automatic selection")
	}
	if p.K == 0 {
		if p.GapMaxK < 2 {
			return eris.Errorf("pipeline: gap max k must be at least 2, got %d", p.GapMaxK)
		}
		if p.GapB < 1 {
			return eris.Errorf("pipeline: gap bootstraps must be at least 1, got %d", p.GapB)
		}
	}
	if p.MinSize < 0 {
		return eris.Errorf("pipeline: min cluster size cannot be negative, got %d", p.MinSize)
	}
	if p.Alpha > 1 {
		return eris.Errorf("pipeline: alpha must lie in [0, 1] or be negative to scan, got %g", p.Alpha)
	}
	for _, v := range p.Variants {
		switch v {
		case VariantHierarchical, VariantSkater, VariantGeoBlend:
		default:
			return eris.Errorf("pipeline: unknown variant %q (use hierarchical, skater, geoblend)", v)
		}
	}
	return nil
}

// ValidateN re-checks the size-dependent bounds once the joined region
// count is known.
func (p *Params) ValidateN(n int) error {
	if p.K > n {
		return eris.Errorf("pipeline: k=%d exceeds the %d joined regions", p.K, n)
	}
	if p.K > 0 && p.MinSize > 0 && p.MinSize*p.K > n {
		return eris.Errorf("pipeline: k=%d clusters of at least %d regions exceed the %d joined regions", p.K, p.MinSize, n)
	}
	if p.Rule == "knn" && p.KNN >= n {
		return eris.Errorf("pipeline: knn k=%d must be smaller than the %d joined regions", p.KNN, n)
	}
	return nil
}

// wants reports whether a variant was requested; an empty list runs all.
func (p *Params) wants(variant string) bool {
	if len(p.Variants) == 0 {
		return true
	}
	for _, v := range p.Variants {
		if v == variant {
			return true
		}
	}
	return false
}
