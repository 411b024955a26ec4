package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT    NOT NULL,
	repo        TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	at_ms       INTEGER NOT NULL,
	payload     BLOB,
	meta        TEXT
);
CREATE INDEX IF NOT EXISTS cache_events_fp ON cache_events(fingerprint, seq);
CREATE INDEX IF NOT EXISTS cache_events_at ON cache_events(at_ms);`

	insertSQL = `INSERT INTO cache_events (fingerprint, repo, kind, at_ms, payload, meta) VALUES (?, ?, ?, ?, ?, ?)`
	selectSQL = `SELECT seq, fingerprint, repo, kind, at_ms, payload, meta FROM cache_events`

	busyTimeoutMS = 5000
)

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the journal at path. ":memory:"
// gives a private in-memory journal.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ErrOpenJournal.WithCause(err).WithContext("path", path)
	}
	// One connection, so an in-memory database is not per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, ErrOpenJournal.WithCause(err).WithContext("path", path)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, ErrCreateSchema.WithCause(err).WithContext("path", path)
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes ev, stamping it with the current time when Timestamp is zero.
func (s *SQLiteStore) Append(ctx context.Context, ev Event) error {
	var meta []byte
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return ErrAppendEvent.WithCause(err).WithContext("fingerprint", ev.Fingerprint)
		}
		meta = b
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, insertSQL,
		ev.Fingerprint, ev.Repo, ev.Type, at.UnixMilli(), ev.Payload, meta); err != nil {
		return ErrAppendEvent.WithCause(err).WithContext("fingerprint", ev.Fingerprint)
	}
	return nil
}

// ByFingerprint implements Store.
func (s *SQLiteStore) ByFingerprint(ctx context.Context, fingerprint string) ([]Event, error) {
	return s.query(ctx, " WHERE fingerprint = ? ORDER BY seq", fingerprint)
}

// Range implements Store.
func (s *SQLiteStore) Range(ctx context.Context, from, to time.Time) ([]Event, error) {
	return s.query(ctx, " WHERE at_ms BETWEEN ? AND ? ORDER BY seq", from.UnixMilli(), to.UnixMilli())
}

func (s *SQLiteStore) query(ctx context.Context, where string, args ...any) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectSQL+where, args...)
	if err != nil {
		return nil, ErrQueryEvents.WithCause(err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, ErrQueryEvents.WithCause(err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrQueryEvents.WithCause(err)
	}
	return out, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev   Event
		atMS int64
		meta []byte
	)
	if err := rows.Scan(&ev.ID, &ev.Fingerprint, &ev.Repo, &ev.Type, &atMS, &ev.Payload, &meta); err != nil {
		return Event{}, err
	}
	ev.Timestamp = time.UnixMilli(atMS).UTC()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
			return Event{}, fmt.Errorf("decode metadata of event %d: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
