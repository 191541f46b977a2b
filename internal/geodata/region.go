// Package geodata loads region geometry tables from shapefiles and GeoJSON.
package geodata

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// Region is one areal unit: a stable identifier, a display name, and an
// immutable polygon geometry.
type Region struct {
	ID       string
	Name     string
	Geometry *geom.MultiPolygon
}

// Table holds the region set for one pipeline run. Region order is the
// source file order and is fixed after load.
type Table struct {
	Regions []Region
	CRS     string

	byID map[string]int
}

// NewTable builds a Table from regions, rejecting duplicate identifiers.
func NewTable(regions []Region, crs string) (*Table, error) {
	byID := make(map[string]int, len(regions))
	for i, r := range regions {
		if r.ID == "" {
			return nil, eris.Errorf("geodata: region at row %d has empty id", i)
		}
		if prev, ok := byID[r.ID]; ok {
			return nil, eris.Errorf("geodata: duplicate region id %q (rows %d and %d)", r.ID, prev, i)
		}
		byID[r.ID] = i
	}
	return &Table{Regions: regions, CRS: crs, byID: byID}, nil
}

// Len returns the number of regions.
func (t *Table) Len() int { return len(t.Regions) }

// IDs returns region identifiers in table order.
func (t *Table) IDs() []string {
	ids := make([]string, len(t.Regions))
	for i, r := range t.Regions {
		ids[i] = r.ID
	}
	return ids
}

// Index returns the row index for a region id.
func (t *Table) Index(id string) (int, bool) {
	i, ok := t.byID[id]
	return i, ok
}

// Region returns the region with the given id.
func (t *Table) Region(id string) (Region, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Region{}, false
	}
	return t.Regions[i], true
}

// Subset returns a new Table containing only the given ids, in the given
// order. All ids must exist.
func (t *Table) Subset(ids []string) (*Table, error) {
	regions := make([]Region, 0, len(ids))
	for _, id := range ids {
		r, ok := t.Region(id)
		if !ok {
			return nil, eris.Errorf("geodata: unknown region id %q in subset", id)
		}
		regions = append(regions, r)
	}
	return NewTable(regions, t.CRS)
}

// Centroid returns the area-weighted planar centroid of the region's
// exterior rings. Interior rings are ignored; the result is used only for
// distance-band and k-nearest-neighbor contiguity, not cartography.
func (r Region) Centroid() (x, y float64) {
	if r.Geometry == nil {
		return math.NaN(), math.NaN()
	}
	var sumA, sumX, sumY float64
	for p := 0; p < r.Geometry.NumPolygons(); p++ {
		poly := r.Geometry.Polygon(p)
		if poly.NumLinearRings() == 0 {
			continue
		}
		a, cx, cy := ringCentroid(poly.LinearRing(0))
		a = math.Abs(a)
		sumA += a
		sumX += cx * a
		sumY += cy * a
	}
	if sumA == 0 {
		return math.NaN(), math.NaN()
	}
	return sumX / sumA, sumY / sumA
}

// ringCentroid computes the signed area and centroid of a linear ring via
// the shoelace formula. Degenerate rings fall back to the vertex mean.
func ringCentroid(ring *geom.LinearRing) (area, cx, cy float64) {
	coords := ring.FlatCoords()
	stride := ring.Stride()
	n := len(coords) / stride
	if n < 3 {
		for i := 0; i < n; i++ {
			cx += coords[i*stride]
			cy += coords[i*stride+1]
		}
		if n > 0 {
			cx /= float64(n)
			cy /= float64(n)
		}
		return 0, cx, cy
	}

	var a, sx, sy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi, yi := coords[i*stride], coords[i*stride+1]
		xj, yj := coords[j*stride], coords[j*stride+1]
		cross := xi*yj - xj*yi
		a += cross
		sx += (xi + xj) * cross
		sy += (yi + yj) * cross
	}
	a /= 2
	if a == 0 {
		for i := 0; i < n; i++ {
			sx += coords[i*stride]
			sy += coords[i*stride+1]
		}
		return 0, sx / float64(n), sy / float64(n)
	}
	return a, sx / (6 * a), sy / (6 * a)
}

// EncodeEWKB serializes a region geometry as little-endian EWKB for storage.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, eris.New("geodata: encode nil geometry")
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: encode ewkb")
	}
	return data, nil
}

// DecodeEWKB deserializes EWKB bytes produced by EncodeEWKB.
func DecodeEWKB(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: decode ewkb")
	}
	return g, nil
}
