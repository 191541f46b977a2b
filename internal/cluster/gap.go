package cluster

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drkrodriguez/ISSS626-GAA/internal/feature"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// GapOptions controls the gap-statistic scan.
type GapOptions struct {
	MaxK    int   // largest k scanned, clamped to N-1
	B       int   // reference bootstrap count
	Seed    int64 // base seed; bootstrap b derives its own stream from (Seed, b)
	Workers int   // parallel bootstraps, default GOMAXPROCS
}

// GapPoint is the statistic at one candidate k.
type GapPoint struct {
	K     int     `json:"k"`
	LogW  float64 `json:"log_w"`
	ELogW float64 `json:"e_log_w"`
	Gap   float64 `json:"gap"`
	SE    float64 `json:"se"`
}

// GapResult is the full scan plus the selected cluster count.
type GapResult struct {
	Points  []GapPoint `json:"points"`
	ChosenK int        `json:"chosen_k"`
}

// GapStatistic estimates the cluster count by comparing observed
// within-cluster dispersion against B uniform reference datasets drawn
// from the feature bounding box (Tibshirani's gap). ChosenK is the
// smallest k >= 2 whose gap reaches the maximum gap minus one standard
// error; k=1 participates in the scan but is never chosen.
func GapStatistic(ctx context.Context, fm *feature.Matrix, d DistanceMatrix, dg *Dendrogram, dopts weights.DistanceOptions, opts GapOptions) (*GapResult, error) {
	n := fm.Len()
	if n < 3 {
		return nil, eris.Errorf("cluster: gap statistic needs at least 3 regions, got %d", n)
	}
	if d.Len() != n || dg.Len() != n {
		return nil, eris.Errorf("cluster: gap inputs disagree on region count (%d features, %d matrix, %d tree)", n, d.Len(), dg.Len())
	}
	if opts.B < 1 {
		return nil, eris.Errorf("cluster: gap needs at least 1 reference bootstrap, got %d", opts.B)
	}
	maxK := opts.MaxK
	if maxK > n-1 {
		zap.L().Warn("cluster: clamping gap max k",
			zap.Int("requested", maxK),
			zap.Int("clamped", n-1),
		)
		maxK = n - 1
	}
	if maxK < 2 {
		return nil, eris.Errorf("cluster: gap max k must be at least 2, got %d", maxK)
	}

	obs, err := dispersionCurve(d, dg, maxK)
	if err != nil {
		return nil, err
	}

	lo, hi := boundingBox(fm)
	ropts := dopts
	ropts.Workers = 1

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ref := make([][]float64, opts.B)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < opts.B; b++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(b)))
			rows := make([][]float64, n)
			for i := range rows {
				rows[i] = make([]float64, len(lo))
				for c := range lo {
					rows[i][c] = lo[c] + rng.Float64()*(hi[c]-lo[c])
				}
			}
			rfm, err := feature.NewMatrix(fm.IDs(), fm.Columns(), rows)
			if err != nil {
				return err
			}
			rd, err := weights.Distances(gctx, rfm, ropts)
			if err != nil {
				return err
			}
			rdg, err := Agglomerate(rd, dg.Linkage())
			if err != nil {
				return err
			}
			curve, err := dispersionCurve(rd, rdg, maxK)
			if err != nil {
				return err
			}
			ref[b] = curve
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "cluster: gap reference bootstraps")
	}

	res := &GapResult{Points: make([]GapPoint, 0, maxK)}
	for k := 1; k <= maxK; k++ {
		mean := 0.0
		for b := range ref {
			mean += ref[b][k-1]
		}
		mean /= float64(opts.B)
		varsum := 0.0
		for b := range ref {
			dev := ref[b][k-1] - mean
			varsum += dev * dev
		}
		sd := math.Sqrt(varsum / float64(opts.B))
		res.Points = append(res.Points, GapPoint{
			K:     k,
			LogW:  obs[k-1],
			ELogW: mean,
			Gap:   mean - obs[k-1],
			SE:    sd * math.Sqrt(1+1/float64(opts.B)),
		})
	}

	res.ChosenK = chooseK(res.Points)
	zap.L().Info("cluster: gap statistic scan complete",
		zap.Int("max_k", maxK),
		zap.Int("bootstraps", opts.B),
		zap.Int("chosen_k", res.ChosenK),
	)
	return res, nil
}

// chooseK applies the one-standard-error rule over the scan, restricted to
// k >= 2. If nothing reaches the band, the best k >= 2 wins outright.
func chooseK(points []GapPoint) int {
	best := 0
	for i, p := range points {
		if p.Gap > points[best].Gap {
			best = i
		}
	}
	threshold := points[best].Gap - points[best].SE
	for _, p := range points {
		if p.K >= 2 && p.Gap >= threshold {
			return p.K
		}
	}
	fallback := 2
	bestGap := math.Inf(-1)
	for _, p := range points {
		if p.K >= 2 && p.Gap > bestGap {
			bestGap = p.Gap
			fallback = p.K
		}
	}
	return fallback
}

// dispersionCurve returns log W_k for k = 1..maxK on one matrix/tree pair.
func dispersionCurve(d DistanceMatrix, dg *Dendrogram, maxK int) ([]float64, error) {
	curve := make([]float64, maxK)
	n := dg.Len()
	for k := 1; k <= maxK; k++ {
		var labels []int
		if k == 1 {
			labels = make([]int, n)
			for i := range labels {
				labels[i] = 1
			}
		} else {
			var err error
			labels, err = dg.Cut(k)
			if err != nil {
				return nil, err
			}
		}
		w := withinDispersion(labels, d)
		if w <= 0 {
			return nil, eris.Errorf("cluster: within-cluster dispersion vanished at k=%d (duplicate regions?)", k)
		}
		curve[k-1] = math.Log(w)
	}
	return curve, nil
}

// withinDispersion is the pooled within-cluster sum of squared pairwise
// dissimilarities, each cluster normalized by its size. Iteration is in
// label order so repeated runs sum in the same order.
func withinDispersion(labels []int, d DistanceMatrix) float64 {
	k := 0
	for _, l := range labels {
		if l > k {
			k = l
		}
	}
	groups := make([][]int, k+1)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}

	total := 0.0
	for _, idxs := range groups[1:] {
		if len(idxs) < 2 {
			continue
		}
		sum := 0.0
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				v := d.At(idxs[a], idxs[b])
				sum += v * v
			}
		}
		total += sum / float64(len(idxs))
	}
	return total
}

// boundingBox returns per-column minima and maxima of the feature matrix.
func boundingBox(fm *feature.Matrix) (lo, hi []float64) {
	cols := fm.NumFeatures()
	lo = make([]float64, cols)
	hi = make([]float64, cols)
	for c := range lo {
		lo[c] = math.Inf(1)
		hi[c] = math.Inf(-1)
	}
	for _, row := range fm.Rows() {
		for c, v := range row {
			if v < lo[c] {
				lo[c] = v
			}
			if v > hi[c] {
				hi[c] = v
			}
		}
	}
	return lo, hi
}
