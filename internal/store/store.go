// Package store persists classification runs and their industrial buildings.
package store

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/model"
)

const defaultListLimit = 100

// Store defines the persistence interface for classification runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source, format string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Buildings
	SaveBuildings(ctx context.Context, runID string, buildings []model.IndustrialBuilding) (int64, error)
	ListBuildings(ctx context.Context, runID string) ([]model.IndustrialBuilding, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// listRunsQuery builds the filtered run listing shared by both backends.
func listRunsQuery(b sq.StatementBuilderType, filter model.RunFilter) sq.SelectBuilder {
	q := b.Select(runColumns...).From("runs").OrderBy("created_at DESC", "id")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

var runColumns = []string{"id", "source", "format", "status", "stats", "error", "created_at", "completed_at"}

func marshalStats(stats model.RunStats) ([]byte, error) {
	b, err := json.Marshal(stats)
	return b, eris.Wrap(err, "store: marshal stats")
}

func unmarshalStats(b []byte) (*model.RunStats, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var stats model.RunStats
	if err := json.Unmarshal(b, &stats); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal stats")
	}
	return &stats, nil
}

func causeText(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}
