package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civicsignal/legisearch/internal/model"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = eris.New("store: session not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
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
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	reason     TEXT NOT NULL,
	iterations TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS citations (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	content_id TEXT NOT NULL,
	citation   TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sessions_reason ON sessions(reason);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_citations_session_id ON citations(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	iterations, err := json.Marshal(rec.Session.Iterations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal iterations")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, query, reason, iterations, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Session.ID, rec.Session.Query, string(rec.Session.Reason),
		string(iterations), rec.Session.StartedAt.UTC(), rec.Session.EndedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert session")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM citations WHERE session_id = ?`, rec.Session.ID); err != nil {
		return eris.Wrap(err, "sqlite: clear citations")
	}
	for i, c := range rec.Citations {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal citation")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO citations (session_id, seq, content_id, citation) VALUES (?, ?, ?, ?)`,
			rec.Session.ID, i, c.ContentID, string(data),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert citation")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, reason, iterations, started_at, ended_at FROM sessions WHERE id = ?`, id)

	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec.Citations, err = s.loadCitations(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) loadCitations(ctx context.Context, sessionID string) ([]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT citation FROM citations WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query citations")
	}
	defer rows.Close()

	var out []model.Citation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan citation")
		}
		var c model.Citation
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal citation")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate citations")
	}
	return out, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, query, reason, iterations, started_at, ended_at FROM sessions`
	args := []any{}
	if filter.Reason != "" {
		query += ` WHERE reason = ?`
		args = append(args, string(filter.Reason))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate sessions")
	}

	for i := range out {
		out[i].Citations, err = s.loadCitations(ctx, out[i].Session.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec        SessionRecord
		reason     string
		iterations string
	)
	err := row.Scan(
		&rec.Session.ID, &rec.Session.Query, &reason, &iterations,
		&rec.Session.StartedAt, &rec.Session.EndedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	rec.Session.Reason = model.CompletionReason(reason)
	if err := json.Unmarshal([]byte(iterations), &rec.Session.Iterations); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal iterations")
	}
	return &rec, nil
}

var _ Store = (*SQLiteStore)(nil)
