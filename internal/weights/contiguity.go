package weights

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
)

// Rule decides which regions count as spatial neighbors. The neighborhood
// builder is strategy-agnostic: a rule only has to return, per region id,
// the ids of its neighbors.
type Rule interface {
	Name() string
	Neighbors(t *geodata.Table) (map[string][]string, error)
}

// ParseRule builds a Rule from its config-surface name. band is the
// distance-band threshold, k the neighbor count; each is validated only for
// the rule that uses it.
func ParseRule(name string, band float64, k int) (Rule, error) {
	switch name {
	case "queen":
		return QueenRule{}, nil
	case "rook":
		return RookRule{}, nil
	case "distance-band":
		if band <= 0 {
			return nil, eris.Errorf("weights: distance-band rule needs a positive band (got %g)", band)
		}
		return DistanceBandRule{Band: band}, nil
	case "knn":
		if k < 1 {
			return nil, eris.Errorf("weights: knn rule needs k >= 1 (got %d)", k)
		}
		return KNNRule{K: k}, nil
	default:
		return nil, eris.Errorf("weights: unknown contiguity rule %q (use queen, rook, distance-band, or knn)", name)
	}
}

// QueenRule marks two regions as neighbors when their boundaries share any
// point. Coordinates are compared exactly; inputs are expected to come from
// one topologically clean source where shared borders repeat coordinates.
type QueenRule struct{}

func (QueenRule) Name() string { return "queen" }

func (QueenRule) Neighbors(t *geodata.Table) (map[string][]string, error) {
	byVertex := make(map[vertexKey][]int)
	for i, r := range t.Regions {
		for _, v := range regionVertices(r) {
			byVertex[v] = append(byVertex[v], i)
		}
	}
	return collectShared(t, byVertex)
}

// RookRule marks two regions as neighbors only when they share a boundary
// edge of positive length, not just a corner point.
type RookRule struct{}

func (RookRule) Name() string { return "rook" }

func (RookRule) Neighbors(t *geodata.Table) (map[string][]string, error) {
	byEdge := make(map[edgeKey][]int)
	for i, r := range t.Regions {
		for _, e := range regionEdges(r) {
			byEdge[e] = append(byEdge[e], i)
		}
	}
	return collectShared(t, byEdge)
}

// DistanceBandRule marks regions as neighbors when their centroids lie
// within Band of each other (planar distance, same units as the CRS).
type DistanceBandRule struct {
	Band float64
}

func (r DistanceBandRule) Name() string { return "distance-band" }

func (r DistanceBandRule) Neighbors(t *geodata.Table) (map[string][]string, error) {
	xs, ys, err := centroids(t)
	if err != nil {
		return nil, err
	}
	adj := make(map[string][]string, t.Len())
	for i := range t.Regions {
		for j := i + 1; j < t.Len(); j++ {
			if math.Hypot(xs[i]-xs[j], ys[i]-ys[j]) <= r.Band {
				adj[t.Regions[i].ID] = append(adj[t.Regions[i].ID], t.Regions[j].ID)
				adj[t.Regions[j].ID] = append(adj[t.Regions[j].ID], t.Regions[i].ID)
			}
		}
	}
	return adj, nil
}

// KNNRule links each region to its K nearest centroids. The raw relation
// is directed; the neighborhood builder symmetrizes it, so a region can end
// up with more than K neighbors.
type KNNRule struct {
	K int
}

func (r KNNRule) Name() string { return "knn" }

func (r KNNRule) Neighbors(t *geodata.Table) (map[string][]string, error) {
	n := t.Len()
	if r.K >= n {
		return nil, eris.Errorf("weights: knn k=%d must be smaller than the region count %d", r.K, n)
	}
	xs, ys, err := centroids(t)
	if err != nil {
		return nil, err
	}

	adj := make(map[string][]string, n)
	type cand struct {
		idx  int
		dist float64
	}
	for i := range t.Regions {
		cands := make([]cand, 0, n-1)
		for j := range t.Regions {
			if j == i {
				continue
			}
			cands = append(cands, cand{j, math.Hypot(xs[i]-xs[j], ys[i]-ys[j])})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		for _, c := range cands[:r.K] {
			adj[t.Regions[i].ID] = append(adj[t.Regions[i].ID], t.Regions[c.idx].ID)
		}
	}
	return adj, nil
}

// Neighborhood is the built contiguity structure: a symmetric adjacency
// over the region order of the source table.
type Neighborhood struct {
	ids  []string
	idx  map[string]int
	adj  [][]int // sorted neighbor indices per region
	rule string
}

// BuildNeighborhood runs the rule and symmetrizes its output. Isolated
// regions stay as isolated nodes; disconnection is the caller's warning to
// surface, not an error here.
func BuildNeighborhood(t *geodata.Table, rule Rule) (*Neighborhood, error) {
	raw, err := rule.Neighbors(t)
	if err != nil {
		return nil, eris.Wrapf(err, "weights: %s rule", rule.Name())
	}

	n := t.Len()
	nb := &Neighborhood{
		ids:  t.IDs(),
		idx:  make(map[string]int, n),
		adj:  make([][]int, n),
		rule: rule.Name(),
	}
	for i, id := range nb.ids {
		nb.idx[id] = i
	}

	sets := make([]map[int]struct{}, n)
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	for id, neighbors := range raw {
		i, ok := nb.idx[id]
		if !ok {
			return nil, eris.Errorf("weights: rule %s returned unknown region id %q", rule.Name(), id)
		}
		for _, nid := range neighbors {
			j, ok := nb.idx[nid]
			if !ok {
				return nil, eris.Errorf("weights: rule %s returned unknown neighbor id %q", rule.Name(), nid)
			}
			if i == j {
				continue
			}
			sets[i][j] = struct{}{}
			sets[j][i] = struct{}{}
		}
	}
	for i, set := range sets {
		nb.adj[i] = make([]int, 0, len(set))
		for j := range set {
			nb.adj[i] = append(nb.adj[i], j)
		}
		sort.Ints(nb.adj[i])
	}

	isolated := 0
	for _, neighbors := range nb.adj {
		if len(neighbors) == 0 {
			isolated++
		}
	}
	if isolated > 0 {
		zap.L().Warn("weights: neighborhood has isolated regions",
			zap.String("rule", rule.Name()),
			zap.Int("isolated", isolated),
		)
	}

	return nb, nil
}

// Len returns the region count.
func (nb *Neighborhood) Len() int { return len(nb.ids) }

// Rule returns the name of the rule that built this neighborhood.
func (nb *Neighborhood) Rule() string { return nb.rule }

// IDs returns region ids in table order.
func (nb *Neighborhood) IDs() []string { return nb.ids }

// AdjacentIdx returns the sorted neighbor indices of region i.
func (nb *Neighborhood) AdjacentIdx(i int) []int { return nb.adj[i] }

// Neighbors returns the neighbor ids of a region.
func (nb *Neighborhood) Neighbors(id string) ([]string, error) {
	i, ok := nb.idx[id]
	if !ok {
		return nil, eris.Errorf("weights: unknown region id %q", id)
	}
	out := make([]string, len(nb.adj[i]))
	for k, j := range nb.adj[i] {
		out[k] = nb.ids[j]
	}
	return out, nil
}

// IsNeighbor reports whether regions i and j are adjacent.
func (nb *Neighborhood) IsNeighbor(i, j int) bool {
	for _, k := range nb.adj[i] {
		if k == j {
			return true
		}
		if k > j {
			return false
		}
	}
	return false
}

// NumLinks returns the number of undirected adjacency links.
func (nb *Neighborhood) NumLinks() int {
	total := 0
	for _, neighbors := range nb.adj {
		total += len(neighbors)
	}
	return total / 2
}

// Components returns the connected components of the contiguity graph as
// id lists, each sorted, ordered by first member. More than one component
// is a data-quality warning for the caller, and it downgrades the spanning
// tree to a spanning forest.
func (nb *Neighborhood) Components() [][]string {
	g := simple.NewUndirectedGraph()
	for i := range nb.ids {
		g.AddNode(simple.Node(i))
	}
	for i, neighbors := range nb.adj {
		for _, j := range neighbors {
			if i < j {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}

	comps := topo.ConnectedComponents(g)
	out := make([][]string, len(comps))
	for c, nodes := range comps {
		idxs := make([]int, len(nodes))
		for k, nd := range nodes {
			idxs[k] = int(nd.ID())
		}
		sort.Ints(idxs)
		ids := make([]string, len(idxs))
		for k, i := range idxs {
			ids[k] = nb.ids[i]
		}
		out[c] = ids
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// geometry helpers

type vertexKey struct {
	x, y float64
}

type edgeKey struct {
	ax, ay, bx, by float64
}

func newEdgeKey(a, b vertexKey) edgeKey {
	if a.x > b.x || (a.x == b.x && a.y > b.y) {
		a, b = b, a
	}
	return edgeKey{a.x, a.y, b.x, b.y}
}

// regionVertices returns the distinct boundary vertices of a region, over
// every ring of every polygon part.
func regionVertices(r geodata.Region) []vertexKey {
	seen := make(map[vertexKey]struct{})
	eachRing(r, func(coords []float64, stride int) {
		n := len(coords) / stride
		for i := 0; i < n; i++ {
			seen[vertexKey{coords[i*stride], coords[i*stride+1]}] = struct{}{}
		}
	})
	out := make([]vertexKey, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}

// regionEdges returns the distinct boundary segments of a region.
func regionEdges(r geodata.Region) []edgeKey {
	seen := make(map[edgeKey]struct{})
	eachRing(r, func(coords []float64, stride int) {
		n := len(coords) / stride
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			a := vertexKey{coords[i*stride], coords[i*stride+1]}
			b := vertexKey{coords[j*stride], coords[j*stride+1]}
			if a == b {
				continue
			}
			seen[newEdgeKey(a, b)] = struct{}{}
		}
	})
	out := make([]edgeKey, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	return out
}

func eachRing(r geodata.Region, fn func(coords []float64, stride int)) {
	if r.Geometry == nil {
		return
	}
	for p := 0; p < r.Geometry.NumPolygons(); p++ {
		poly := r.Geometry.Polygon(p)
		for q := 0; q < poly.NumLinearRings(); q++ {
			ring := poly.LinearRing(q)
			fn(ring.FlatCoords(), ring.Stride())
		}
	}
}

// collectShared turns a feature→regions index into a neighbor map: any two
// regions listed under the same key are neighbors.
func collectShared[K comparable](t *geodata.Table, byFeature map[K][]int) (map[string][]string, error) {
	sets := make([]map[int]struct{}, t.Len())
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	for _, regions := range byFeature {
		if len(regions) < 2 {
			continue
		}
		for a := 0; a < len(regions); a++ {
			for b := a + 1; b < len(regions); b++ {
				i, j := regions[a], regions[b]
				if i == j {
					continue
				}
				sets[i][j] = struct{}{}
				sets[j][i] = struct{}{}
			}
		}
	}

	adj := make(map[string][]string, t.Len())
	for i, set := range sets {
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for j := range set {
			ids = append(ids, t.Regions[j].ID)
		}
		sort.Strings(ids)
		adj[t.Regions[i].ID] = ids
	}
	return adj, nil
}

func centroids(t *geodata.Table) (xs, ys []float64, err error) {
	xs = make([]float64, t.Len())
	ys = make([]float64, t.Len())
	for i, r := range t.Regions {
		x, y := r.Centroid()
		if math.IsNaN(x) || math.IsNaN(y) {
			return nil, nil, eris.Errorf("weights: region %q has no usable centroid", r.ID)
		}
		xs[i], ys[i] = x, y
	}
	return xs, ys, nil
}
