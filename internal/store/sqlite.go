package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/drkrodriguez/ISSS626-GAA/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT NOT NULL,
	result     TEXT,
	error      TEXT,
	chosen_k   INTEGER,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_regions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	region_id TEXT NOT NULL,
	name      TEXT,
	labels    TEXT NOT NULL,
	geom      BLOB NOT NULL,
	PRIMARY KEY (run_id, region_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_run_regions_run_id ON run_regions(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, dataset string, params []byte) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, dataset, string(model.RunStatusRunning), string(params), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result []byte, chosenK int, regions []model.RunRegion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin complete run")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, chosen_k = ?, updated_at = ? WHERE id = ?`,
		string(result), string(model.RunStatusComplete), chosenK, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	// A re-completed run replaces its regions wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_regions WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear regions for run %s", runID)
	}
	for _, rr := range regions {
		labelsJSON, err := json.Marshal(rr.Labels)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal labels for region %s", rr.RegionID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_regions (run_id, region_id, name, labels, geom) VALUES (?, ?, ?, ?, ?)`,
			runID, rr.RegionID, rr.Name, string(labelsJSON), rr.Geometry,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert region %s for run %s", rr.RegionID, runID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit complete run")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, status, params, result, error, chosen_k, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	// The result document can be large; list views go without it.
	query := `SELECT id, dataset, status, error, chosen_k, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Dataset != "" {
		query += ` AND dataset = ?`
		args = append(args, filter.Dataset)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg sql.NullString
		var chosenK sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Status, &errMsg, &chosenK, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Error = errMsg.String
		r.ChosenK = int(chosenK.Int64)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetRunRegions(ctx context.Context, runID string) ([]model.RunRegion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, region_id, name, labels, geom FROM run_regions WHERE run_id = ? ORDER BY region_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get regions for run %s", runID)
	}
	defer rows.Close()

	var regions []model.RunRegion
	for rows.Next() {
		var rr model.RunRegion
		var name sql.NullString
		var labelsJSON string
		if err := rows.Scan(&rr.RunID, &rr.RegionID, &name, &labelsJSON, &rr.Geometry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		rr.Name = name.String
		if err := json.Unmarshal([]byte(labelsJSON), &rr.Labels); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal labels for region %s", rr.RegionID)
		}
		regions = append(regions, rr)
	}
	return regions, eris.Wrap(rows.Err(), "sqlite: get regions iterate")
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete run")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_regions WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: delete regions for run %s", runID)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete run")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, runID string) (*model.Run, error) {
	var r model.Run
	var params string
	var result, errMsg sql.NullString
	var chosenK sql.NullInt64

	err := row.Scan(&r.ID, &r.Dataset, &r.Status, &params, &result, &errMsg, &chosenK, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Params = json.RawMessage(params)
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	r.Error = errMsg.String
	r.ChosenK = int(chosenK.Int64)
	return &r, nil
}
