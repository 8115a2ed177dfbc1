package osm

import (
	"context"
	"io"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/industrial"
)

// objectScanner is the common surface of osmpbf and osmxml scanners.
type objectScanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// PBFSource reads an .osm.pbf file.
type PBFSource struct {
	Path  string
	Procs int
}

// Apply implements Source.
func (s *PBFSource) Apply(ctx context.Context, h Handler) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return eris.Wrapf(err, "osm: open %s", s.Path)
	}
	defer f.Close() //nolint:errcheck

	procs := s.Procs
	if procs <= 0 {
		procs = 1
	}
	return scan(ctx, osmpbf.New(ctx, f, procs), h)
}

// XMLSource reads an .osm XML document from a file or reader.
type XMLSource struct {
	Path   string
	Reader io.Reader
}

// Apply implements Source.
func (s *XMLSource) Apply(ctx context.Context, h Handler) error {
	r := s.Reader
	if r == nil {
		f, err := os.Open(s.Path)
		if err != nil {
			return eris.Wrapf(err, "osm: open %s", s.Path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}
	return scan(ctx, osmxml.New(ctx, r), h)
}

// scan drains the scanner into h. Node locations are kept so that ways can be
// turned into polygons.
func scan(ctx context.Context, sc objectScanner, h Handler) error {
	defer sc.Close() //nolint:errcheck

	log := zap.L().With(zap.String("component", "osm.scan"))
	locations := make(map[osm.NodeID][2]float64)
	var nodes, ways, relations, incomplete int

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "osm: scan cancelled")
		}
		switch o := sc.Object().(type) {
		case *osm.Node:
			nodes++
			locations[o.ID] = [2]float64{o.Lon, o.Lat}
			if err := h.Node(Node{ID: int64(o.ID), Lon: o.Lon, Lat: o.Lat, Tags: tagMap(o.Tags)}); err != nil {
				return eris.Wrapf(err, "osm: handle node %d", o.ID)
			}
		case *osm.Way:
			ways++
			f := Feature{ID: industrial.WayID(int64(o.ID)), Tags: tagMap(o.Tags)}
			if flat, ok := wayCoords(o, locations); ok {
				f.Geometry = ringPolygon(flat)
			} else {
				incomplete++
			}
			if err := h.Way(f); err != nil {
				return eris.Wrapf(err, "osm: handle way %d", o.ID)
			}
		case *osm.Relation:
			relations++
			r := Relation{ID: int64(o.ID), Tags: tagMap(o.Tags), Members: make([]Member, len(o.Members))}
			for i, m := range o.Members {
				r.Members[i] = Member{Type: string(m.Type), Ref: m.Ref, Role: m.Role}
			}
			if err := h.Relation(r); err != nil {
				return eris.Wrapf(err, "osm: handle relation %d", o.ID)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "osm: scan")
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "osm: scan cancelled")
	}

	log.Debug("scan complete",
		zap.Int("nodes", nodes),
		zap.Int("ways", ways),
		zap.Int("relations", relations),
		zap.Int("incomplete_ways", incomplete),
	)
	return nil
}

// wayCoords resolves a way's node refs to flat lon/lat pairs. Locations
// embedded in the way take precedence over the node cache. ok is false when
// any node has no known location.
func wayCoords(w *osm.Way, locations map[osm.NodeID][2]float64) ([]float64, bool) {
	flat := make([]float64, 0, len(w.Nodes)*2)
	for _, wn := range w.Nodes {
		if wn.Lat != 0 || wn.Lon != 0 {
			flat = append(flat, wn.Lon, wn.Lat)
			continue
		}
		loc, ok := locations[wn.ID]
		if !ok {
			return nil, false
		}
		flat = append(flat, loc[0], loc[1])
	}
	return flat, len(flat) > 0
}

func tagMap(tags osm.Tags) industrial.Tags {
	if len(tags) == 0 {
		return nil
	}
	return industrial.Tags(tags.Map())
}
