package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/db"
	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
)

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB NOT NULL,
	result     JSONB,
	error      TEXT,
	chosen_k   INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_regions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	region_id TEXT NOT NULL,
	name      TEXT,
	labels    JSONB NOT NULL,
	geom      BYTEA NOT NULL,
	PRIMARY KEY (run_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_regions_run_id ON run_regions(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, dataset string, params []byte) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, dataset, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, dataset, string(model.RunStatusRunning), params, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Dataset:   dataset,
		Status:    model.RunStatusRunning,
		Params:    json.RawMessage(params),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result []byte, chosenK int, regions []model.RunRegion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, chosen_k = $3, updated_at = $4 WHERE id = $5`,
		result, string(model.RunStatusComplete), chosenK, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}

	// A re-completed run replaces its regions wholesale.
	if _, err := tx.Exec(ctx, `DELETE FROM run_regions WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear regions for run %s", runID)
	}

	rows := make([][]any, 0, len(regions))
	for _, rr := range regions {
		labelsJSON, err := json.Marshal(rr.Labels)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal labels for region %s", rr.RegionID)
		}
		rows = append(rows, []any{runID, rr.RegionID, rr.Name, labelsJSON, rr.Geometry})
	}
	if _, err := db.CopyFrom(ctx, tx, "run_regions", []string{"run_id", "region_id", "name", "labels", "geom"}, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy regions for run %s", runID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete run")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var params, result []byte
	var errMsg *string
	var chosenK *int

	err := s.pool.QueryRow(ctx,
		`SELECT id, dataset, status, params, result, error, chosen_k, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Dataset, &r.Status, &params, &result, &errMsg, &chosenK, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	r.Params = json.RawMessage(params)
	if result != nil {
		r.Result = json.RawMessage(result)
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if chosenK != nil {
		r.ChosenK = *chosenK
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	// The result document can be large; list views go without it.
	query := `SELECT id, dataset, status, error, chosen_k, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Dataset != "" {
		query += fmt.Sprintf(` AND dataset = $%d`, argIdx)
		args = append(args, filter.Dataset)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg *string
		var chosenK *int
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Status, &errMsg, &chosenK, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if chosenK != nil {
			r.ChosenK = *chosenK
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetRunRegions(ctx context.Context, runID string) ([]model.RunRegion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, region_id, name, labels, geom FROM run_regions WHERE run_id = $1 ORDER BY region_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get regions for run %s", runID)
	}
	defer rows.Close()

	var regions []model.RunRegion
	for rows.Next() {
		var rr model.RunRegion
		var name *string
		var labelsJSON []byte
		if err := rows.Scan(&rr.RunID, &rr.RegionID, &name, &labelsJSON, &rr.Geometry); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		if name != nil {
			rr.Name = *name
		}
		if err := json.Unmarshal(labelsJSON, &rr.Labels); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal labels for region %s", rr.RegionID)
		}
		regions = append(regions, rr)
	}
	return regions, eris.Wrap(rows.Err(), "postgres: get regions iterate")
}

func (s *PostgresStore) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM run_regions WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: delete regions for run %s", runID)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete run")
}
