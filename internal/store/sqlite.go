package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/precon-cli/internal/model"
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
	id              TEXT PRIMARY KEY,
	project         TEXT NOT NULL,
	doc_fingerprint TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	passes          TEXT NOT NULL,
	result          TEXT,
	error           TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	sequence     INTEGER NOT NULL,
	trade        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	payload      TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS consensus_reports (
	id         TEXT PRIMARY KEY,
	runs       TEXT NOT NULL,
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project);
CREATE INDEX IF NOT EXISTS idx_batches_run_id ON batches(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, project, docFingerprint string, passes []model.PassConfig) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	passesJSON, err := json.Marshal(passes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal passes")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, doc_fingerprint, status, passes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, project, docFingerprint, string(model.RunStatusQueued), string(passesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:             id,
		Project:        project,
		DocFingerprint: docFingerprint,
		Status:         model.RunStatusQueued,
		Passes:         passes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.PermutationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
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
		`SELECT id, project, doc_fingerprint, status, passes, result, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, project, doc_fingerprint, status, passes, result, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
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
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveBatches(ctx context.Context, batches []model.Batch) error {
	for _, b := range batches {
		payload, err := json.Marshal(b)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal batch %s", b.ID)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO batches (id, run_id, sequence, trade, status, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status = excluded.status, payload = excluded.payload`,
			b.ID, b.RunID, b.Sequence, b.Trade, string(b.Status), string(payload), b.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save batch %s", b.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, runID string) ([]model.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM batches WHERE run_id = ? ORDER BY sequence`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list batches for run %s", runID)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		var b model.Batch
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal batch")
		}
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.ConsensusReport) (string, error) {
	id := uuid.New().String()

	runsJSON, err := json.Marshal(report.Runs)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal report runs")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consensus_reports (id, runs, report, created_at) VALUES (?, ?, ?, ?)`,
		id, string(runsJSON), string(reportJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert report")
	}
	return id, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.ConsensusReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report FROM consensus_reports WHERE id = ?`,
		reportID,
	)

	var reportJSON string
	err := row.Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}

	var report model.ConsensusReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &report, nil
}

// helpers

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
	var passesJSON string
	var resultJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Project, &r.DocFingerprint, &r.Status, &passesJSON, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(passesJSON), &r.Passes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal passes")
	}
	if resultJSON.Valid {
		r.Result = &model.PermutationResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}
