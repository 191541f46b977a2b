package geodata

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ShapefileOptions configures shapefile loading.
type ShapefileOptions struct {
	IDField   string // DBF field holding the region identifier (required)
	NameField string // optional DBF field holding a display name
	CRS       string // recorded verbatim; geometry is never reprojected
}

// ReadShapefile loads polygon records from an ESRI shapefile into a Table.
// Records with missing or unsupported geometry are skipped with a warning
// count; a missing IDField value is an error because every region must be
// addressable by id.
func ReadShapefile(path string, opts ShapefileOptions) (*Table, error) {
	if opts.IDField == "" {
		return nil, eris.New("geodata: shapefile id field is required")
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	idIdx, ok := fieldIdx[strings.ToLower(opts.IDField)]
	if !ok {
		return nil, eris.Errorf("geodata: shapefile has no field %q", opts.IDField)
	}
	nameIdx := -1
	if opts.NameField != "" {
		nameIdx, ok = fieldIdx[strings.ToLower(opts.NameField)]
		if !ok {
			return nil, eris.Errorf("geodata: shapefile has no field %q", opts.NameField)
		}
	}

	var regions []Region
	var skipped int
	row := -1
	for reader.Next() {
		row++
		_, shape := reader.Shape()

		id := cleanAttr(reader.Attribute(idIdx))
		if id == "" {
			return nil, eris.Errorf("geodata: shapefile record %d has empty %s", row, opts.IDField)
		}

		name := id
		if nameIdx >= 0 {
			if v := cleanAttr(reader.Attribute(nameIdx)); v != "" {
				name = v
			}
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		regions = append(regions, Region{ID: id, Name: name, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Warn("geodata: skipped shapefile records without polygon geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(regions) == 0 {
		return nil, eris.Errorf("geodata: shapefile %s contains no polygon records", path)
	}

	return NewTable(regions, opts.CRS)
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile polygons store all rings in one part list; each part becomes a
// single-ring polygon here, which preserves boundaries for contiguity tests.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geodata: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geodata: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

// cleanAttr strips DBF padding from an attribute value.
func cleanAttr(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

// AttributeRows reads the DBF attribute portion of a shapefile as string
// rows, one per record, in the same order as geometry records. Useful when
// the attribute table ships inside the shapefile instead of a separate CSV.
func AttributeRows(path string) (columns []string, rows [][]string, err error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geodata: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	columns = make([]string, len(fields))
	for i, f := range fields {
		columns[i] = strings.TrimRight(f.String(), "\x00")
	}

	for reader.Next() {
		row := make([]string, len(fields))
		for i := range fields {
			row[i] = cleanAttr(reader.Attribute(i))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, eris.Errorf("geodata: shapefile %s contains no records", path)
	}
	return columns, rows, nil
}

// String implements fmt.Stringer for debugging.
func (t *Table) String() string {
	return fmt.Sprintf("geodata.Table{regions: %d, crs: %q}", len(t.Regions), t.CRS)
}
