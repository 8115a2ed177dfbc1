package db

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk upsert into Table.
type UpsertConfig struct {
	Table        string   // schema-qualified target, e.g. "geo.industrial_buildings"
	Columns      []string // columns carried by each row, in row order
	ConflictKeys []string // unique constraint columns
	UpdateCols   []string // columns rewritten on conflict; nil means every non-key column
}

// upsertPlan holds the statements of one BulkUpsert call.
type upsertPlan struct {
	temp      pgx.Identifier
	createSQL string
	insertSQL string
}

func planUpsert(cfg UpsertConfig) (*upsertPlan, error) {
	if len(cfg.Columns) == 0 {
		return nil, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return nil, eris.New("db: upsert: no conflict keys specified")
	}

	update := cfg.UpdateCols
	if update == nil {
		keys := make(map[string]struct{}, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			keys[k] = struct{}{}
		}
		for _, c := range cfg.Columns {
			if _, ok := keys[c]; !ok {
				update = append(update, c)
			}
		}
	}

	// Keys only: nothing to rewrite, so conflicting rows are left alone.
	action := "DO NOTHING"
	if len(update) > 0 {
		sets := make([]string, len(update))
		for i, c := range update {
			q := quoteIdent(c)
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	temp := pgx.Identifier{"_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	cols := quoteAll(cfg.Columns)

	insertSQL, _, err := sq.Insert(qualified(cfg.Table)).
		Columns(cols...).
		Select(sq.Select(cols...).From(temp.Sanitize())).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) %s", strings.Join(quoteAll(cfg.ConflictKeys), ", "), action)).
		ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "db: upsert: build insert for %s", cfg.Table)
	}

	return &upsertPlan{
		temp: temp,
		createSQL: fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			temp.Sanitize(), qualified(cfg.Table)),
		insertSQL: insertSQL,
	}, nil
}

// BulkUpsert stages rows in a transaction-scoped temp table with COPY, then
// moves them into the target with INSERT ... SELECT ... ON CONFLICT. It
// returns the number of target rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan, err := planUpsert(cfg)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, plan.createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, plan.temp, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, plan.insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// qualified quotes a possibly schema-qualified table name.
func qualified(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteIdent(s string) string { return pgx.Identifier{s}.Sanitize() }

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
