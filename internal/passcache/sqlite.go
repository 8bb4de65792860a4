package passcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite is a file-backed Cache using modernc.org/sqlite. Safe for
// concurrent readers; writes are append-only (INSERT OR IGNORE), so racing
// writers of the same key keep the first entry.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a cache database at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "passcache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "passcache: exec %s", pragma)
		}
	}

	const migration = `
CREATE TABLE IF NOT EXISTS pass_cache (
	key       TEXT PRIMARY KEY,
	inputs    TEXT NOT NULL,
	result    TEXT NOT NULL,
	stored_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "passcache: migrate")
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, inputs, result, stored_at FROM pass_cache WHERE key = ?`,
		key,
	)

	var e Entry
	var inputsJSON, resultJSON string
	err := row.Scan(&e.Key, &inputsJSON, &resultJSON, &e.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "passcache: load")
	}
	if err := json.Unmarshal([]byte(inputsJSON), &e.Inputs); err != nil {
		return nil, eris.Wrap(err, "passcache: unmarshal inputs")
	}
	if err := json.Unmarshal([]byte(resultJSON), &e.Result); err != nil {
		return nil, eris.Wrap(err, "passcache: unmarshal result")
	}
	return &e, nil
}

func (s *SQLite) Store(ctx context.Context, entry Entry) error {
	inputsJSON, err := json.Marshal(entry.Inputs)
	if err != nil {
		return eris.Wrap(err, "passcache: marshal inputs")
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return eris.Wrap(err, "passcache: marshal result")
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pass_cache (key, inputs, result, stored_at) VALUES (?, ?, ?, ?)`,
		entry.Key, string(inputsJSON), string(resultJSON), storedAt,
	)
	return eris.Wrap(err, "passcache: store")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
