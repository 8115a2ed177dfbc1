package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/db"
	"github.com/sells-group/industrial-cli/internal/model"
)

// BuildingsTable holds classified buildings in Postgres.
const BuildingsTable = "geo.industrial_buildings"

var buildingColumns = []string{
	"run_id", "osm_type", "osm_id", "building", "criteria", "lon", "lat", "footprint", "area_m2",
}

var pgb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (the PostGIS containment backend).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS geo;

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source       TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	stats        JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS geo.industrial_buildings (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	osm_type TEXT NOT NULL,
	osm_id   BIGINT NOT NULL,
	building TEXT NOT NULL DEFAULT '',
	criteria TEXT[] NOT NULL,
	lon      DOUBLE PRECISION,
	lat      DOUBLE PRECISION,
	PRIMARY KEY (run_id, osm_type, osm_id)
);

-- EWKB footprint, readable with ST_GeomFromEWKB(footprint).
ALTER TABLE geo.industrial_buildings ADD COLUMN IF NOT EXISTS footprint BYTEA;
ALTER TABLE geo.industrial_buildings ADD COLUMN IF NOT EXISTS area_m2 DOUBLE PRECISION;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source, format string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, format, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, format, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Format:    format,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), causeText(cause), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	query, args, err := pgb.Select(runColumns...).From("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get run")
	}
	r, err := scanPgRun(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run %s: run not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query, args, err := listRunsQuery(pgb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list runs")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveBuildings upserts the run's buildings through a COPY into a temp table.
func (s *PostgresStore) SaveBuildings(ctx context.Context, runID string, buildings []model.IndustrialBuilding) (int64, error) {
	rows := make([][]any, 0, len(buildings))
	for _, b := range buildings {
		rows = append(rows, []any{
			runID, b.OSMType, b.OSMID, b.Building, b.Criteria, b.Lon, b.Lat, footprintArg(b.Footprint), b.AreaM2,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        BuildingsTable,
		Columns:      buildingColumns,
		ConflictKeys: []string{"run_id", "osm_type", "osm_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save buildings for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) ListBuildings(ctx context.Context, runID string) ([]model.IndustrialBuilding, error) {
	query, args, err := pgb.Select(buildingColumns...).
		From(BuildingsTable).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("osm_type DESC", "osm_id").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list buildings")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list buildings %s", runID)
	}
	defer rows.Close()

	var out []model.IndustrialBuilding
	for rows.Next() {
		var b model.IndustrialBuilding
		var footprint []byte
		if err := rows.Scan(&b.RunID, &b.OSMType, &b.OSMID, &b.Building, &b.Criteria, &b.Lon, &b.Lat,
			&footprint, &b.AreaM2); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		b.Footprint = footprint
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list buildings iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var stats []byte

	if err := row.Scan(&r.ID, &r.Source, &r.Format, &status, &stats, &r.Error, &r.CreatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)

	var err error
	if r.Stats, err = unmarshalStats(stats); err != nil {
		return nil, err
	}
	return &r, nil
}
