package weights

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/graph/simple"
)

// Edge is one undirected contiguity link weighted by attribute
// dissimilarity. U < V always holds.
type Edge struct {
	U, V     int
	UID, VID string
	Weight   float64
}

// CostGraph is a contiguity graph whose edges carry attribute-space
// dissimilarity costs. It is the input to spanning-tree partitioning.
type CostGraph struct {
	ids   []string
	edges []Edge
	nb    *Neighborhood
}

// AttachCosts weights each neighborhood link with the corresponding entry
// of the dissimilarity matrix. The two structures must describe the same
// regions in the same order.
func AttachCosts(nb *Neighborhood, d *DistMatrix) (*CostGraph, error) {
	if nb.Len() != d.Len() {
		return nil, eris.Errorf("weights: neighborhood has %d regions but distance matrix has %d", nb.Len(), d.Len())
	}
	for i, id := range nb.IDs() {
		if d.ID(i) != id {
			return nil, eris.Errorf("weights: region order mismatch at index %d (%q vs %q)", i, id, d.ID(i))
		}
	}

	g := &CostGraph{
		ids: nb.IDs(),
		nb:  nb,
	}
	for i := 0; i < nb.Len(); i++ {
		for _, j := range nb.AdjacentIdx(i) {
			if i >= j {
				continue
			}
			g.edges = append(g.edges, Edge{
				U:      i,
				V:      j,
				UID:    g.ids[i],
				VID:    g.ids[j],
				Weight: d.At(i, j),
			})
		}
	}
	return g, nil
}

// Len returns the region count.
func (g *CostGraph) Len() int { return len(g.ids) }

// IDs returns region ids in table order.
func (g *CostGraph) IDs() []string { return g.ids }

// Edges returns the weighted edges, one per undirected link, in canonical
// (U, V) order.
func (g *CostGraph) Edges() []Edge { return g.edges }

// Neighborhood returns the contiguity structure the costs were attached to.
func (g *CostGraph) Neighborhood() *Neighborhood { return g.nb }

// Weighted exposes the graph in gonum form.
func (g *CostGraph) Weighted() *simple.WeightedUndirectedGraph {
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for i := range g.ids {
		wg.AddNode(simple.Node(i))
	}
	for _, e := range g.edges {
		wg.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(e.U),
			T: simple.Node(e.V),
			W: e.Weight,
		})
	}
	return wg
}
