package containment

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
)

// Cached memoises another resolver's answers per building ID, so a building
// delivered more than once by the source is only resolved once.
type Cached struct {
	next  Resolver
	cache *lru.Cache[industrial.ID, []industrial.ID]
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next Resolver, size int) (*Cached, error) {
	cache, err := lru.New[industrial.ID, []industrial.ID](size)
	if err != nil {
		return nil, eris.Wrap(err, "containment: create cache")
	}
	return &Cached{next: next, cache: cache}, nil
}

// Containing implements Resolver.
func (c *Cached) Containing(ctx context.Context, building osm.Feature) ([]industrial.ID, error) {
	if ids, ok := c.cache.Get(building.ID); ok {
		return ids, nil
	}
	ids, err := c.next.Containing(ctx, building)
	if err != nil {
		return nil, err
	}
	c.cache.Add(building.ID, ids)
	return ids, nil
}

// AddArea forwards to the wrapped resolver when it collects areas.
func (c *Cached) AddArea(area osm.Feature) {
	if col, ok := c.next.(Collector); ok {
		col.AddArea(area)
	}
}

// AreaLanduse forwards to the wrapped resolver when it labels areas.
func (c *Cached) AreaLanduse() map[industrial.ID]string {
	if l, ok := c.next.(Labeler); ok {
		return l.AreaLanduse()
	}
	return nil
}

// Unwrap returns the wrapped resolver.
func (c *Cached) Unwrap() Resolver { return c.next }
