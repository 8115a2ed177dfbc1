// Package osm delivers OpenStreetMap records to a Handler: point features
// first, then area/linear features, then composite relations.
package osm

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/industrial-cli/internal/industrial"
)

// Node is a point feature.
type Node struct {
	ID   int64
	Lon  float64
	Lat  float64
	Tags industrial.Tags
}

// Feature is an area or linear feature (an OSM way, or a polygon from a
// shapefile layer).
type Feature struct {
	ID   industrial.ID
	Tags industrial.Tags

	// Geometry is nil for open ways and for ways whose node locations are
	// incomplete.
	Geometry *geom.MultiPolygon
}

// Closed reports whether the feature has a polygon geometry.
func (f Feature) Closed() bool {
	return f.Geometry != nil && f.Geometry.NumPolygons() > 0
}

// Centroid returns the area-weighted centroid of the feature's polygons.
func (f Feature) Centroid() (geom.Coord, error) {
	if !f.Closed() {
		return nil, eris.Errorf("osm: %s has no polygon geometry", f.ID)
	}
	c, err := xy.Centroid(f.Geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: centroid of %s", f.ID)
	}
	return c, nil
}

const earthRadiusM = 6371008.8

// AreaM2 returns the approximate area of the feature's polygons in square
// metres, from an equirectangular projection centred on the centroid.
func (f Feature) AreaM2() (float64, error) {
	c, err := f.Centroid()
	if err != nil {
		return 0, err
	}
	metresPerDeg := earthRadiusM * math.Pi / 180
	scale := metresPerDeg * metresPerDeg * math.Cos(c[1]*math.Pi/180)
	return f.Geometry.Area() * scale, nil
}

// Member is one member of a relation.
type Member struct {
	Type string
	Ref  int64
	Role string
}

// Relation is a composite feature.
type Relation struct {
	ID      int64
	Tags    industrial.Tags
	Members []Member
}

// Handler receives records from a Source. Returning an error stops the
// source.
type Handler interface {
	Node(n Node) error
	Way(f Feature) error
	Relation(r Relation) error
}

// Source delivers every record of one input to a Handler.
type Source interface {
	Apply(ctx context.Context, h Handler) error
}
