package osm

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const srid = 4326

// ringPolygon builds a single-polygon MultiPolygon from flat lon/lat pairs.
// It returns nil when the ring has fewer than three distinct points. The ring
// is closed if the last point does not repeat the first.
func ringPolygon(flat []float64) *geom.MultiPolygon {
	if distinctPoints(flat) < 3 {
		return nil
	}
	n := len(flat)
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat[:n:n], flat[0], flat[1])
	}

	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	if err := mp.Push(poly); err != nil {
		return nil
	}
	return mp
}

func distinctPoints(flat []float64) int {
	seen := make(map[[2]float64]struct{}, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		seen[[2]float64{flat[i], flat[i+1]}] = struct{}{}
	}
	return len(seen)
}

// signedArea is the shoelace area of a closed ring; negative for clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(flat); i += 2 {
		sum += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return sum / 2
}

// EncodeWKB converts a geometry to EWKB bytes with SRID 4326.
// Returns nil, nil for nil geometries.
func EncodeWKB(g *geom.MultiPolygon) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	if g.SRID() == 0 {
		g = geom.NewMultiPolygonFlat(g.Layout(), g.FlatCoords(), g.Endss()).SetSRID(srid)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "osm: encode WKB")
	}
	return data, nil
}
