package geodata

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// GeoJSONOptions configures GeoJSON loading.
type GeoJSONOptions struct {
	IDProperty   string // feature property holding the region identifier (falls back to feature id)
	NameProperty string // optional property holding a display name
	CRS          string // recorded verbatim; geometry is never reprojected
}

// ReadGeoJSONFile loads a FeatureCollection from a file on disk.
func ReadGeoJSONFile(path string, opts GeoJSONOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadGeoJSON(f, opts)
}

// ReadGeoJSON loads a FeatureCollection of polygons into a Table.
func ReadGeoJSON(r io.Reader, opts GeoJSONOptions) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geodata: parse geojson")
	}

	var regions []Region
	var skipped int
	for i, f := range fc.Features {
		if f == nil {
			skipped++
			continue
		}

		id := featureID(f, opts.IDProperty)
		if id == "" {
			return nil, eris.Errorf("geodata: geojson feature %d has no usable id (property %q)", i, opts.IDProperty)
		}

		name := id
		if opts.NameProperty != "" {
			if v := propertyString(f.Properties, opts.NameProperty); v != "" {
				name = v
			}
		}

		mp := toMultiPolygon(f.Geometry)
		if mp == nil {
			skipped++
			continue
		}

		regions = append(regions, Region{ID: id, Name: name, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Warn("geodata: skipped geojson features without polygon geometry", zap.Int("skipped", skipped))
	}
	if len(regions) == 0 {
		return nil, eris.New("geodata: geojson contains no polygon features")
	}

	return NewTable(regions, opts.CRS)
}

// MarshalFeatureCollection renders regions as a GeoJSON FeatureCollection,
// attaching per-region properties from the supplied function. This is the
// handoff format for the map-rendering side.
func MarshalFeatureCollection(regions []Region, properties func(Region) map[string]any) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(regions))}
	for _, r := range regions {
		props := map[string]any{"id": r.ID, "name": r.Name}
		if properties != nil {
			for k, v := range properties(r) {
				props[k] = v
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.ID,
			Geometry:   r.Geometry,
			Properties: props,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: marshal feature collection")
	}
	return data, nil
}

func featureID(f *geojson.Feature, property string) string {
	if property != "" {
		if v := propertyString(f.Properties, property); v != "" {
			return v
		}
		return ""
	}
	return f.ID
}

func propertyString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch geo := g.(type) {
	case *geom.MultiPolygon:
		return geo
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geo.Layout())
		if err := mp.Push(geo); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}
