package osm

import (
	"context"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/industrial"
)

// Geofabrik free shapefile layer names.
const (
	DefaultBuildingsLayer = "gis_osm_buildings_a_free_1.shp"
	DefaultLanduseLayer   = "gis_osm_landuse_a_free_1.shp"
)

// ShapefileSource reads the Geofabrik buildings and landuse polygon layers.
// Both layers are delivered as area features, buildings first; there are no
// point or composite records.
type ShapefileSource struct {
	BuildingsPath string
	LandusePath   string

	// BuildingKey and LanduseKey name the tags the layer values are mapped to.
	BuildingKey string
	LanduseKey  string
}

// layer describes how one shapefile maps onto OSM tags.
type layer struct {
	path     string
	tagKey   string
	valueCol string
	fallback string
}

// Apply implements Source.
func (s *ShapefileSource) Apply(ctx context.Context, h Handler) error {
	buildingKey := s.BuildingKey
	if buildingKey == "" {
		buildingKey = "building"
	}
	landuseKey := s.LanduseKey
	if landuseKey == "" {
		landuseKey = "landuse"
	}

	layers := []layer{
		{path: s.BuildingsPath, tagKey: buildingKey, valueCol: "type", fallback: "yes"},
		{path: s.LandusePath, tagKey: landuseKey, valueCol: "fclass"},
	}
	for _, l := range layers {
		if l.path == "" {
			continue
		}
		if err := applyLayer(ctx, l, h); err != nil {
			return err
		}
	}
	return nil
}

func applyLayer(ctx context.Context, l layer, h Handler) error {
	reader, err := shp.Open(l.path)
	if err != nil {
		return eris.Wrapf(err, "osm: open shapefile %s", l.path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := fieldIdx["osm_id"]
	if !ok {
		return eris.Errorf("osm: shapefile %s has no osm_id field", l.path)
	}
	valueIdx, hasValue := fieldIdx[l.valueCol]
	typeIdx, hasType := fieldIdx["osm_type"]

	var delivered, skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "osm: shapefile read cancelled")
		}
		_, shape := reader.Shape()

		ref, err := strconv.ParseInt(attribute(reader, idIdx), 10, 64)
		if err != nil {
			skipped++
			continue
		}

		var kind string
		if hasType {
			kind = attribute(reader, typeIdx)
		}
		id, err := shapefileID(ref, kind)
		if err != nil {
			skipped++
			continue
		}

		value := l.fallback
		if hasValue {
			if v := attribute(reader, valueIdx); v != "" {
				value = v
			}
		}

		f := Feature{ID: id}
		if value != "" {
			f.Tags = industrial.Tags{l.tagKey: value}
		}
		if p, ok := shape.(*shp.Polygon); ok {
			f.Geometry = shapeToMultiPolygon(p)
		}
		if err := h.Way(f); err != nil {
			return eris.Wrapf(err, "osm: handle %s", f.ID)
		}
		delivered++
	}

	zap.L().Debug("osm: shapefile layer read",
		zap.String("path", l.path),
		zap.Int("features", delivered),
		zap.Int("skipped", skipped),
	)
	return nil
}

// shapefileID maps a shapefile row onto an element identity. The free
// Geofabrik layers carry no element type, so polygons built from multipolygon
// relations share ID space with ways there; an osm_type column or the
// negative-ref convention of osm2pgsql exports keeps them apart when present.
func shapefileID(ref int64, kind string) (industrial.ID, error) {
	if kind != "" {
		k, err := industrial.ParseKind(strings.ToLower(kind))
		if err != nil {
			return industrial.ID{}, err
		}
		if ref < 0 {
			ref = -ref
		}
		return industrial.ID{Kind: k, Ref: ref}, nil
	}
	if ref < 0 {
		return industrial.RelationID(-ref), nil
	}
	return industrial.WayID(ref), nil
}

func attribute(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

// shapeToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Clockwise rings start a new polygon; counter-clockwise rings are holes of
// the preceding polygon.
func shapeToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("osm: skipping malformed polygon part", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if distinctPoints(flat) < 3 {
			continue
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if signedArea(flat) > 0 && current != nil {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("osm: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("osm: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
