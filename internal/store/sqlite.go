package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/industrial-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	stats        TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS industrial_buildings (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	osm_type TEXT NOT NULL,
	osm_id   INTEGER NOT NULL,
	building TEXT NOT NULL DEFAULT '',
	criteria TEXT NOT NULL,
	lon       REAL,
	lat       REAL,
	footprint BLOB,
	area_m2   REAL,
	PRIMARY KEY (run_id, osm_type, osm_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source, format string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, format, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, format, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Format:    format,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), causeText(cause), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	query, args, err := sqlb.Select(runColumns...).From("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get run")
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query, args, err := listRunsQuery(sqlb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list runs")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveBuildings replaces any rows of the run with the same identity.
func (s *SQLiteStore) SaveBuildings(ctx context.Context, runID string, buildings []model.IndustrialBuilding) (int64, error) {
	if len(buildings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save buildings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO industrial_buildings (run_id, osm_type, osm_id, building, criteria, lon, lat, footprint, area_m2)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, osm_type, osm_id) DO UPDATE SET
		   building = excluded.building, criteria = excluded.criteria,
		   lon = excluded.lon, lat = excluded.lat,
		   footprint = excluded.footprint, area_m2 = excluded.area_m2`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save buildings")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, b := range buildings {
		if _, err := stmt.ExecContext(ctx, runID, b.OSMType, b.OSMID, b.Building, b.CriteriaString(),
			b.Lon, b.Lat, footprintArg(b.Footprint), b.AreaM2); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save building %s/%d", b.OSMType, b.OSMID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save buildings")
	}
	return n, nil
}

func (s *SQLiteStore) ListBuildings(ctx context.Context, runID string) ([]model.IndustrialBuilding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, osm_type, osm_id, building, criteria, lon, lat, footprint, area_m2 FROM industrial_buildings
		 WHERE run_id = ? ORDER BY osm_type DESC, osm_id`, // "way" sorts before "relation"
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list buildings %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.IndustrialBuilding
	for rows.Next() {
		var b model.IndustrialBuilding
		var criteria string
		var lon, lat, area sql.NullFloat64
		var footprint []byte
		if err := rows.Scan(&b.RunID, &b.OSMType, &b.OSMID, &b.Building, &criteria, &lon, &lat,
			&footprint, &area); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		b.Criteria = model.SplitCriteria(criteria)
		if lon.Valid && lat.Valid {
			b.Lon, b.Lat = &lon.Float64, &lat.Float64
		}
		if len(footprint) > 0 {
			b.Footprint = footprint
		}
		if area.Valid {
			b.AreaM2 = &area.Float64
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list buildings iterate")
}

// helpers

// footprintArg binds an empty footprint as NULL.
func footprintArg(g model.EWKB) any {
	if len(g) == 0 {
		return nil
	}
	return []byte(g)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var stats sql.NullString
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.Source, &r.Format, &r.Status, &stats, &r.Error, &r.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if stats.Valid {
		if r.Stats, err = unmarshalStats([]byte(stats.String)); err != nil {
			return nil, err
		}
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
