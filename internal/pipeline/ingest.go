package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/containment"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/model"
	"github.com/sells-group/industrial-cli/internal/osm"
)

// ingester is the osm.Handler that feeds the engine. Point and composite
// records are only counted.
type ingester struct {
	engine    *industrial.Engine
	matcher   *industrial.Matcher
	collector containment.Collector

	// buildings keeps the last sighting of each building; order keeps first
	// sightings so resolution is deterministic.
	buildings map[industrial.ID]osm.Feature
	order     []industrial.ID
	areas     int
	areaIDs   map[industrial.ID]struct{}

	stats model.RunStats
}

func newIngester(e *industrial.Engine, m *industrial.Matcher, r containment.Resolver) *ingester {
	ing := &ingester{
		engine:    e,
		matcher:   m,
		buildings: make(map[industrial.ID]osm.Feature),
		areaIDs:   make(map[industrial.ID]struct{}),
	}
	if c, ok := r.(containment.Collector); ok {
		ing.collector = c
	}
	return ing
}

func (i *ingester) Node(osm.Node) error {
	i.stats.Nodes++
	return nil
}

func (i *ingester) Relation(osm.Relation) error {
	i.stats.Relations++
	return nil
}

func (i *ingester) Way(f osm.Feature) error {
	i.stats.Ways++

	if i.matcher.IsBuilding(f.Tags) {
		if err := i.engine.RecordBuilding(f.ID, f.Tags); err != nil {
			return eris.Wrapf(err, "pipeline: record building %s", f.ID)
		}
		if _, seen := i.buildings[f.ID]; !seen {
			i.order = append(i.order, f.ID)
		}
		i.buildings[f.ID] = f
	}

	if i.matcher.IsLanduse(f.Tags) {
		if err := i.engine.RecordArea(f.ID, f.Tags); err != nil {
			return eris.Wrapf(err, "pipeline: record area %s", f.ID)
		}
		i.areas++
		i.areaIDs[f.ID] = struct{}{}
		if i.collector != nil && f.Closed() {
			i.collector.AddArea(f)
		}
	}
	return nil
}

// footprints returns the buildings that have polygon geometry, in first-seen
// order.
func (i *ingester) footprints() []osm.Feature {
	out := make([]osm.Feature, 0, len(i.order))
	for _, id := range i.order {
		if f := i.buildings[id]; f.Closed() {
			out = append(out, f)
		}
	}
	return out
}
