package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
)

// ErrNotFound marks lookups for runs that do not exist. Callers test for
// it with errors.Is.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Dataset string          `json:"dataset,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for clustering runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, dataset string, params []byte) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result []byte, chosenK int, regions []model.RunRegion) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	GetRunRegions(ctx context.Context, runID string) ([]model.RunRegion, error)
	DeleteRun(ctx context.Context, runID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open constructs a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, pool)
	}
	return nil, eris.Errorf("store: unknown driver %q (use sqlite or postgres)", driver)
}
