// Package containment answers which landuse areas contain a building.
package containment

import (
	"context"

	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
)

// Resolver returns the IDs of the landuse areas whose geometry contains the
// building. The building itself is never reported as its own container.
type Resolver interface {
	Containing(ctx context.Context, building osm.Feature) ([]industrial.ID, error)
}

// Collector is implemented by resolvers that build their own area index from
// the record stream.
type Collector interface {
	AddArea(area osm.Feature)
}

// Labeler is implemented by resolvers that know the landuse value of the
// areas they return, so areas absent from the record stream can still be
// classified.
type Labeler interface {
	AreaLanduse() map[industrial.ID]string
}
