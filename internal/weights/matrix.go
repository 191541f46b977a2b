// Package weights builds the relational structures over a region set: the
// attribute-space dissimilarity matrix, the spatial contiguity graph, and
// the minimum spanning forest that the constrained cluster engine consumes.
package weights

import (
	"context"
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
)

// Metric names a pairwise distance over feature vectors.
type Metric string

const (
	Euclidean Metric = "euclidean"
	Manhattan Metric = "manhattan"
	Minkowski Metric = "minkowski"
)

// DistanceOptions configures dissimilarity computation.
type DistanceOptions struct {
	Metric  Metric
	P       float64 // Minkowski exponent, required >= 1 when Metric is minkowski
	Workers int     // 0 means GOMAXPROCS
}

// Validate checks the metric configuration eagerly.
func (o DistanceOptions) Validate() error {
	switch o.Metric {
	case Euclidean, Manhattan:
		return nil
	case Minkowski:
		if o.P < 1 {
			return eris.Errorf("weights: minkowski exponent must be >= 1 (got %g)", o.P)
		}
		return nil
	default:
		return eris.Errorf("weights: unknown metric %q (use euclidean, manhattan, or minkowski)", o.Metric)
	}
}

func (o DistanceOptions) exponent() float64 {
	switch o.Metric {
	case Manhattan:
		return 1
	case Minkowski:
		return o.P
	default:
		return 2
	}
}

// DistMatrix is a symmetric dissimilarity matrix with a zero diagonal,
// aligned with a fixed region id order. Read-only after construction.
type DistMatrix struct {
	ids []string
	m   *mat.SymDense
}

// Distances computes the pairwise dissimilarity matrix over standardized
// feature vectors. Only the upper triangle is computed; the symmetric store
// mirrors it. Rows are striped across workers, each writing disjoint cells.
func Distances(ctx context.Context, fm *feature.Matrix, opts DistanceOptions) (*DistMatrix, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := fm.Len()
	if n == 0 {
		return nil, eris.New("weights: feature matrix is empty")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	d := &DistMatrix{
		ids: fm.IDs(),
		m:   mat.NewSymDense(n, nil),
	}
	exp := opts.exponent()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < n; i += workers {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ri := fm.Row(i)
				for j := i + 1; j < n; j++ {
					d.m.SetSym(i, j, floats.Distance(ri, fm.Row(j), exp))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "weights: distance computation")
	}

	zap.L().Debug("weights: dissimilarity matrix built",
		zap.Int("regions", n),
		zap.String("metric", string(opts.Metric)),
		zap.Int("workers", workers),
	)
	return d, nil
}

// NewDistMatrix builds a matrix from an explicit pairwise function. The
// function is evaluated on the upper triangle only and must be symmetric in
// meaning; the diagonal is fixed at zero.
func NewDistMatrix(ids []string, pairwise func(i, j int) float64) *DistMatrix {
	n := len(ids)
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.SetSym(i, j, pairwise(i, j))
		}
	}
	return &DistMatrix{ids: ids, m: m}
}

// CentroidDistances builds the geographic distance matrix over planar
// region centroids, used by the blended-distance cluster variant.
func CentroidDistances(t *geodata.Table) (*DistMatrix, error) {
	n := t.Len()
	if n == 0 {
		return nil, eris.New("weights: region table is empty")
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, r := range t.Regions {
		x, y := r.Centroid()
		if math.IsNaN(x) || math.IsNaN(y) {
			return nil, eris.Errorf("weights: region %q has no usable centroid", r.ID)
		}
		xs[i], ys[i] = x, y
	}
	return NewDistMatrix(t.IDs(), func(i, j int) float64 {
		return math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
	}), nil
}

// Len returns the region count.
func (d *DistMatrix) Len() int { return len(d.ids) }

// At returns the dissimilarity between regions i and j.
func (d *DistMatrix) At(i, j int) float64 { return d.m.At(i, j) }

// IDs returns region ids in matrix order.
func (d *DistMatrix) IDs() []string { return d.ids }

// ID returns the region id at row i.
func (d *DistMatrix) ID(i int) string { return d.ids[i] }

// Max returns the largest entry, used to normalize matrices before
// blending. Zero for a single-region matrix.
func (d *DistMatrix) Max() float64 {
	var maxV float64
	n := d.Len()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v := d.m.At(i, j); v > maxV {
				maxV = v
			}
		}
	}
	return maxV
}
