// Package pipeline drives one classification run: it streams a record source
// into the classification engine, resolves containment for every building
// footprint, and finalizes the result.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/containment"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/model"
	"github.com/sells-group/industrial-cli/internal/osm"
)

const defaultWorkers = 4

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of concurrent containment lookups.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// Pipeline classifies the buildings of one source.
type Pipeline struct {
	source   osm.Source
	matcher  *industrial.Matcher
	resolver containment.Resolver
	workers  int
}

// New creates a Pipeline.
func New(src osm.Source, m *industrial.Matcher, r containment.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{source: src, matcher: m, resolver: r, workers: defaultWorkers}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is the product of a completed run.
type Outcome struct {
	RunID     string
	Result    *industrial.Result
	Buildings []model.IndustrialBuilding
	Stats     model.RunStats
}

// Run reads the whole source, then classifies. Nothing is emitted before the
// source is exhausted. An empty runID is replaced by a fresh UUID.
func (p *Pipeline) Run(ctx context.Context, runID string) (*Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID))

	engine := industrial.NewEngine(p.matcher)
	ing := newIngester(engine, p.matcher, p.resolver)

	log.Info("pipeline: reading source")
	if err := p.source.Apply(ctx, ing); err != nil {
		return nil, eris.Wrap(err, "pipeline: read source")
	}
	log.Info("pipeline: source read",
		zap.Int("nodes", ing.stats.Nodes),
		zap.Int("ways", ing.stats.Ways),
		zap.Int("relations", ing.stats.Relations),
		zap.Int("buildings", len(ing.order)),
	)

	footprints := ing.footprints()
	if err := p.resolve(ctx, engine, footprints); err != nil {
		return nil, err
	}
	labelled, err := p.recordLabelledAreas(engine, ing)
	if err != nil {
		return nil, err
	}
	if labelled > 0 {
		log.Info("pipeline: areas classified from stored landuse", zap.Int("areas", labelled))
	}

	stats := ing.stats
	es := engine.Stats()
	stats.Buildings = len(ing.order)
	stats.Areas = ing.areas
	stats.Containments = es.Containments
	stats.Duplicates = es.Duplicates
	stats.Unresolved = len(ing.order) - len(footprints)

	res, err := engine.Finalize()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: finalize")
	}

	counts := res.CountBy()
	stats.Industrial = res.Len()
	stats.SelfTagged = counts[industrial.SelfTagged]
	stats.IndustrialArea = counts[industrial.IndustrialArea]
	stats.IndustrialLikeArea = counts[industrial.IndustrialLikeArea]
	stats.DurationMS = time.Since(start).Milliseconds()

	out := &Outcome{
		RunID:     runID,
		Result:    res,
		Buildings: buildRows(runID, res, ing, p.matcher),
		Stats:     stats,
	}

	log.Info("pipeline: classification complete",
		zap.Int("industrial", stats.Industrial),
		zap.Int("containments", stats.Containments),
		zap.Int("unresolved", stats.Unresolved),
		zap.Int64("duration_ms", stats.DurationMS),
	)
	return out, nil
}

// recordLabelledAreas records the stored landuse of areas the resolver
// returned but the source never delivered. Tags from the source win.
func (p *Pipeline) recordLabelledAreas(engine *industrial.Engine, ing *ingester) (int, error) {
	l, ok := p.resolver.(containment.Labeler)
	if !ok {
		return 0, nil
	}
	var n int
	for id, value := range l.AreaLanduse() {
		if _, streamed := ing.areaIDs[id]; streamed {
			continue
		}
		if err := engine.RecordArea(id, p.matcher.LanduseTags(value)); err != nil {
			return n, eris.Wrapf(err, "pipeline: record stored area %s", id)
		}
		n++
	}
	return n, nil
}

// buildRows turns the result into persisted rows, ordered by ID.
func buildRows(runID string, res *industrial.Result, ing *ingester, m *industrial.Matcher) []model.IndustrialBuilding {
	matches := res.Matches()
	rows := make([]model.IndustrialBuilding, 0, len(matches))
	for _, match := range matches {
		row := model.IndustrialBuilding{
			RunID:    runID,
			OSMType:  match.ID.Kind.String(),
			OSMID:    match.ID.Ref,
			Criteria: match.Criteria.Names(),
		}
		if f, ok := ing.buildings[match.ID]; ok {
			row.Building = m.BuildingValue(f.Tags)
			if c, err := f.Centroid(); err == nil {
				lon, lat := c[0], c[1]
				row.Lon, row.Lat = &lon, &lat
			}
			if wkb, err := osm.EncodeWKB(f.Geometry); err == nil && wkb != nil {
				row.Footprint = wkb
			}
			if area, err := f.AreaM2(); err == nil {
				row.AreaM2 = &area
			}
		}
		rows = append(rows, row)
	}
	return rows
}
