package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists lifecycle events to a local SQLite database
// (modernc.org/sqlite driver, CGO-free). Path is a filesystem path to the
// database file; use ":memory:" for in-memory.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the schema.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	s := &SQLiteSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backend_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			port INTEGER NOT NULL,
			detail TEXT NULL,
			occurred_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backend_events_name ON backend_events(name);`,
		`CREATE INDEX IF NOT EXISTS idx_backend_events_type ON backend_events(type);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

// Send implements Sink.
func (s *SQLiteSink) Send(ctx context.Context, e Event) error {
	var detail sql.NullString
	if e.Record.Detail != "" {
		detail = sql.NullString{String: e.Record.Detail, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backend_events(type, name, pid, port, detail, occurred_at)
		VALUES(?, ?, ?, ?, ?, ?);`,
		string(e.Type), e.Record.Name, e.Record.PID, e.Record.Port, detail, e.OccurredAt.UTC())
	return err
}

// Recent returns up to limit most recent events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, name, pid, port, detail, occurred_at
		FROM backend_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		var detail sql.NullString
		if err := rows.Scan(&typ, &e.Record.Name, &e.Record.PID, &e.Record.Port, &detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		if detail.Valid {
			e.Record.Detail = detail.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
