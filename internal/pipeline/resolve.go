package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
)

// resolve looks up the containing areas of every footprint. Each worker
// records into its own engine shard; shards are merged into engine once all
// lookups succeed.
func (p *Pipeline) resolve(ctx context.Context, engine *industrial.Engine, footprints []osm.Feature) error {
	if len(footprints) == 0 {
		return nil
	}
	workers := min(p.workers, len(footprints))
	chunk := (len(footprints) + workers - 1) / workers

	log := zap.L().With(zap.String("component", "pipeline.resolve"))
	log.Info("pipeline: resolving containment",
		zap.Int("footprints", len(footprints)),
		zap.Int("workers", workers),
	)

	shards := make([]*industrial.Engine, 0, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(footprints); start += chunk {
		batch := footprints[start:min(start+chunk, len(footprints))]
		shard := industrial.NewEngine(p.matcher)
		shards = append(shards, shard)

		g.Go(func() error {
			for _, b := range batch {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "pipeline: resolve cancelled")
				}
				areas, err := p.resolver.Containing(gctx, b)
				if err != nil {
					return eris.Wrapf(err, "pipeline: resolve %s", b.ID)
				}
				for _, a := range areas {
					if err := shard.RecordContainment(b.ID, a); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, shard := range shards {
		if err := engine.Merge(shard); err != nil {
			return eris.Wrap(err, "pipeline: merge containment shard")
		}
	}
	return nil
}
