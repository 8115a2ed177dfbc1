package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/db"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "industrial.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openMigratedStore opens the configured store and applies its schema.
func openMigratedStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initPostGIS opens a pool for the landuse table. The caller closes it.
func initPostGIS(ctx context.Context) (db.Pool, func(), error) {
	url := cfg.PostGISURL()
	if url == "" {
		return nil, nil, eris.New("containment.database_url is required (INDUSTRIAL_CONTAINMENT_DATABASE_URL)")
	}
	pg, err := store.NewPostgres(ctx, url, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "open postgis pool")
	}
	return pg.Pool(), func() { _ = pg.Close() }, nil
}

// initMatcher compiles the configured tag vocabulary.
func initMatcher() (*industrial.Matcher, industrial.Vocabulary, error) {
	vocab, err := cfg.Vocabulary.LoadVocabulary()
	if err != nil {
		return nil, vocab, err
	}
	m, err := vocab.Compile()
	if err != nil {
		return nil, vocab, eris.Wrap(err, "compile vocabulary")
	}
	return m, vocab, nil
}
