package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/precon-cli/internal/db"
	"github.com/sells-group/precon-cli/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, project, doc_fingerprint, status, passes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"complete_run":      `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"fail_run":          `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, project, doc_fingerprint, status, passes, result, error, created_at, updated_at FROM runs WHERE id = $1`,
	"list_batches":      `SELECT payload FROM batches WHERE run_id = $1 ORDER BY sequence`,
	"insert_report":     `INSERT INTO consensus_reports (id, runs, report, created_at) VALUES ($1, $2, $3, $4)`,
	"get_report":        `SELECT report FROM consensus_reports WHERE id = $1`,
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project         TEXT NOT NULL,
	doc_fingerprint TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	passes          JSONB NOT NULL,
	result          JSONB,
	error           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	sequence   INTEGER NOT NULL,
	trade      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS consensus_reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	runs       JSONB NOT NULL,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS consensus_items (
	report_id   TEXT NOT NULL REFERENCES consensus_reports(id),
	key         TEXT NOT NULL,
	package_id  TEXT NOT NULL,
	description TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	likely_tp   BOOLEAN NOT NULL,
	PRIMARY KEY (report_id, key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project);
CREATE INDEX IF NOT EXISTS idx_batches_run_id ON batches(run_id);
CREATE INDEX IF NOT EXISTS idx_consensus_items_score ON consensus_items(report_id, score DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) CreateRun(ctx context.Context, project, docFingerprint string, passes []model.PassConfig) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	passesJSON, err := json.Marshal(passes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal passes")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, project, doc_fingerprint, status, passes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, project, docFingerprint, string(model.RunStatusQueued), passesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.PermutationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
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
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project, doc_fingerprint, status, passes, result, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, project, doc_fingerprint, status, passes, result, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Project != "" {
		query += ` AND project = ` + arg(filter.Project)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveBatches(ctx context.Context, batches []model.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(batches))
	for _, b := range batches {
		payload, err := json.Marshal(b)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal batch %s", b.ID)
		}
		rows = append(rows, []any{b.ID, b.RunID, b.Sequence, b.Trade, string(b.Status), payload, b.CreatedAt})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "batches",
		Columns:      []string{"id", "run_id", "sequence", "trade", "status", "payload", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status", "payload"},
	}, rows)
	return eris.Wrap(err, "postgres: save batches")
}

func (s *PostgresStore) ListBatches(ctx context.Context, runID string) ([]model.Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM batches WHERE run_id = $1 ORDER BY sequence`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list batches for run %s", runID)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		var b model.Batch
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal batch")
		}
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.ConsensusReport) (string, error) {
	id := uuid.New().String()

	runsJSON, err := json.Marshal(report.Runs)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal report runs")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO consensus_reports (id, runs, report, created_at) VALUES ($1, $2, $3, $4)`,
		id, runsJSON, reportJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert report")
	}

	// Items are also flattened into their own table so agreement can be
	// queried in SQL without unpacking the report blob.
	itemRows := make([][]any, 0, len(report.Items))
	for _, item := range report.Items {
		itemRows = append(itemRows, []any{id, item.Key, item.PackageID, item.Description, item.Score, item.LikelyTruePositive})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "consensus_items",
		[]string{"report_id", "key", "package_id", "description", "score", "likely_tp"},
		itemRows,
	); err != nil {
		return "", eris.Wrap(err, "postgres: copy consensus items")
	}
	return id, nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.ConsensusReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM consensus_reports WHERE id = $1`,
		reportID,
	).Scan(&reportJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}

	var report model.ConsensusReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &report, nil
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var passesJSON []byte
	var resultJSON []byte
	var errMsg *string

	err := row.Scan(&r.ID, &r.Project, &r.DocFingerprint, &r.Status, &passesJSON, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if err := json.Unmarshal(passesJSON, &r.Passes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal passes")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.PermutationResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
