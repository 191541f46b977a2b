package cluster

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// BlendPoint is the partition quality at one mixing value. QAttr and QGeo
// are the shares of total dispersion explained by the partition in each
// space; both live in [0, 1].
type BlendPoint struct {
	Alpha float64 `json:"alpha"`
	QAttr float64 `json:"q_attr"`
	QGeo  float64 `json:"q_geo"`
}

// BlendResult is the alpha scan plus the partition at the chosen mix.
type BlendResult struct {
	Points      []BlendPoint `json:"points"`
	ChosenAlpha float64      `json:"chosen_alpha"`
	Labels      []int        `json:"-"`
}

// DefaultAlphaGrid is the standard 0 to 1 scan in steps of 0.1.
func DefaultAlphaGrid() []float64 {
	grid := make([]float64, 11)
	for i := range grid {
		grid[i] = float64(i) / 10
	}
	return grid
}

// Blend mixes the attribute and geographic matrices as
// (1-alpha)*Dattr + alpha*Dgeo after normalizing each by its maximum, so
// neither space dominates on scale alone.
func Blend(dAttr, dGeo *weights.DistMatrix, alpha float64) (*weights.DistMatrix, error) {
	if alpha < 0 || alpha > 1 {
		return nil, eris.Errorf("cluster: alpha must lie in [0, 1], got %g", alpha)
	}
	if err := checkAligned(dAttr, dGeo); err != nil {
		return nil, err
	}

	scaleA := dAttr.Max()
	if scaleA == 0 {
		scaleA = 1
	}
	scaleG := dGeo.Max()
	if scaleG == 0 {
		scaleG = 1
	}
	return weights.NewDistMatrix(dAttr.IDs(), func(i, j int) float64 {
		return (1-alpha)*dAttr.At(i, j)/scaleA + alpha*dGeo.At(i, j)/scaleG
	}), nil
}

// BlendScan agglomerates under ward at each alpha in the grid, cuts at k,
// and scores the partition in both spaces. ChosenAlpha maximizes
// QAttr + QGeo; ties resolve to the smaller alpha.
func BlendScan(ctx context.Context, dAttr, dGeo *weights.DistMatrix, k int, alphas []float64, workers int) (*BlendResult, error) {
	if err := checkAligned(dAttr, dGeo); err != nil {
		return nil, err
	}
	n := dAttr.Len()
	if k < 2 || k > n {
		return nil, eris.Errorf("cluster: k=%d must lie in [2, %d]", k, n)
	}
	if len(alphas) == 0 {
		alphas = DefaultAlphaGrid()
	}
	for _, a := range alphas {
		if a < 0 || a > 1 {
			return nil, eris.Errorf("cluster: alpha must lie in [0, 1], got %g", a)
		}
	}

	ones := make([]int, n)
	for i := range ones {
		ones[i] = 1
	}
	tAttr := withinDispersion(ones, dAttr)
	tGeo := withinDispersion(ones, dGeo)
	if tAttr == 0 || tGeo == 0 {
		return nil, eris.New("cluster: a blended space has zero total dispersion")
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	points := make([]BlendPoint, len(alphas))
	labels := make([][]int, len(alphas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, alpha := range alphas {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			blended, err := Blend(dAttr, dGeo, alpha)
			if err != nil {
				return err
			}
			dg, err := Agglomerate(blended, Ward)
			if err != nil {
				return err
			}
			cut, err := dg.Cut(k)
			if err != nil {
				return err
			}
			points[i] = BlendPoint{
				Alpha: alpha,
				QAttr: 1 - withinDispersion(cut, dAttr)/tAttr,
				QGeo:  1 - withinDispersion(cut, dGeo)/tGeo,
			}
			labels[i] = cut
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "cluster: alpha scan")
	}

	best := 0
	for i := 1; i < len(points); i++ {
		if points[i].QAttr+points[i].QGeo > points[best].QAttr+points[best].QGeo {
			best = i
		}
	}

	res := &BlendResult{
		Points:      points,
		ChosenAlpha: points[best].Alpha,
		Labels:      labels[best],
	}
	zap.L().Info("cluster: alpha scan complete",
		zap.Int("grid", len(alphas)),
		zap.Float64("chosen_alpha", res.ChosenAlpha),
		zap.Float64("q_attr", points[best].QAttr),
		zap.Float64("q_geo", points[best].QGeo),
	)
	return res, nil
}

func checkAligned(a, b *weights.DistMatrix) error {
	if a.Len() != b.Len() {
		return eris.Errorf("cluster: matrices disagree on region count (%d vs %d)", a.Len(), b.Len())
	}
	for i, id := range a.IDs() {
		if b.ID(i) != id {
			return eris.Errorf("cluster: region order mismatch at index %d (%q vs %q)", i, id, b.ID(i))
		}
	}
	return nil
}
