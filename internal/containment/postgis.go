package containment

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/industrial-cli/internal/db"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
	"github.com/sells-group/industrial-cli/internal/resilience"
)

// DefaultTable holds landuse polygons for the PostGIS resolver.
const DefaultTable = "geo.landuse_areas"

// validTables is an allowlist of landuse tables. Table names are
// interpolated into SQL, so nothing else is accepted.
var validTables = map[string]bool{
	"geo.landuse_areas":      true,
	"geo.landuse_areas_test": true,
	"public.landuse_areas":   true,
}

func validateTable(table string) error {
	if !validTables[table] {
		return eris.Errorf("containment: invalid table name %q", table)
	}
	return nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostGISOption configures a PostGIS resolver.
type PostGISOption func(*PostGIS)

// WithRateLimit caps the resolver at qps queries per second.
func WithRateLimit(qps float64, burst int) PostGISOption {
	return func(p *PostGIS) {
		if qps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// WithRetry sets the retry policy for transient database errors.
func WithRetry(cfg resilience.RetryConfig) PostGISOption {
	return func(p *PostGIS) { p.retry = cfg }
}

// PostGIS resolves containment against landuse polygons stored in PostGIS.
// It remembers the stored landuse value of every area it returns.
type PostGIS struct {
	pool    db.Pool
	table   string
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	mu      sync.Mutex
	landuse map[industrial.ID]string
}

// NewPostGIS returns a resolver querying table.
func NewPostGIS(pool db.Pool, table string, opts ...PostGISOption) (*PostGIS, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("containment.postgis", "containing")
	p := &PostGIS{pool: pool, table: table, retry: retry, landuse: make(map[industrial.ID]string)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Containing implements Resolver.
func (p *PostGIS) Containing(ctx context.Context, building osm.Feature) ([]industrial.ID, error) {
	if !building.Closed() {
		return nil, nil
	}

	wkb, err := osm.EncodeWKB(building.Geometry)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Select("kind", "ref", "COALESCE(landuse, '')").
		From(p.table).
		Where("ST_Contains(geom, ST_Centroid(ST_GeomFromEWKB(?)))", wkb).
		Where(sq.Or{
			sq.NotEq{"kind": building.ID.Kind.String()},
			sq.NotEq{"ref": building.ID.Ref},
		}).
		OrderBy("kind", "ref").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "containment: build query")
	}

	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]industrial.ID, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "containment: rate limit")
			}
		}
		return p.query(ctx, building.ID, query, args)
	})
}

func (p *PostGIS) query(ctx context.Context, id industrial.ID, query string, args []any) ([]industrial.ID, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "containment: query areas containing %s", id)
	}
	defer rows.Close()

	var (
		out    []industrial.ID
		values []string
	)
	for rows.Next() {
		var kind, landuse string
		var ref int64
		if err := rows.Scan(&kind, &ref, &landuse); err != nil {
			return nil, eris.Wrap(err, "containment: scan area row")
		}
		k, err := industrial.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, industrial.ID{Kind: k, Ref: ref})
		values = append(values, landuse)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "containment: iterate area rows")
	}

	p.mu.Lock()
	for i, id := range out {
		if values[i] != "" {
			p.landuse[id] = values[i]
		}
	}
	p.mu.Unlock()
	return out, nil
}

// AreaLanduse implements Labeler.
func (p *PostGIS) AreaLanduse() map[industrial.ID]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.landuse)
}

const defaultBatchSize = 50000

// EnsureTable creates the landuse table and its spatial index.
func EnsureTable(ctx context.Context, pool db.Pool, table string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	schema, name := splitTable(table)

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schema}.Sanitize()),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind    TEXT NOT NULL,
			ref     BIGINT NOT NULL,
			landuse TEXT,
			geom    geometry(MultiPolygon, 4326) NOT NULL,
			PRIMARY KEY (kind, ref)
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)`,
			pgx.Identifier{"idx_" + name + "_geom"}.Sanitize(), table),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "containment: ensure table %s", table)
		}
	}
	return nil
}

// LoadAreas replaces the contents of table with the closed landuse features,
// using COPY in batches of batchSize rows (0 = default 50,000). The landuse
// column holds the value m reads from each area's tags.
func LoadAreas(ctx context.Context, pool db.Pool, table string, m *industrial.Matcher, areas []osm.Feature, batchSize int) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	schema, name := splitTable(table)

	rows := make([][]any, 0, len(areas))
	var skipped int
	for _, a := range areas {
		wkb, err := osm.EncodeWKB(a.Geometry)
		if err != nil || wkb == nil {
			skipped++
			continue
		}
		rows = append(rows, []any{a.ID.Kind.String(), a.ID.Ref, m.LanduseValue(a.Tags), wkb})
	}

	log := zap.L().With(
		zap.String("component", "containment.load"),
		zap.String("table", table),
		zap.Int("total_rows", len(rows)),
		zap.Int("skipped", skipped),
	)

	if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", pgx.Identifier{schema, name}.Sanitize())); err != nil {
		return 0, eris.Wrapf(err, "containment: truncate %s", table)
	}

	columns := []string{"kind", "ref", "landuse", "geom"}
	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := db.CopyFromSchema(ctx, pool, schema, name, columns, rows[i:end])
		if err != nil {
			return total, eris.Wrapf(err, "containment: load batch %d-%d", i, end)
		}
		total += n
		log.Debug("batch loaded", zap.Int("batch_start", i), zap.Int("batch_end", end), zap.Int64("batch_rows", n))
	}

	log.Info("landuse areas loaded", zap.Int64("rows", total))
	return total, nil
}

func splitTable(table string) (schema, name string) {
	schema, name, ok := strings.Cut(table, ".")
	if !ok {
		return "public", table
	}
	return schema, name
}
