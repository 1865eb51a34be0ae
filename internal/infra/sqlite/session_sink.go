// Package sqlite keeps a local, embedded copy of session snapshots.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"live-quiz-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_sessions (
	id         TEXT PRIMARY KEY,
	quiz_id    TEXT NOT NULL,
	phase      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	state      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS game_sessions_updated_at_idx ON game_sessions (updated_at);
`

// SessionSink persists snapshots in a SQLite file.
type SessionSink struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" keeps everything in process.
func Open(path string) (*SessionSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SessionSink{db: db}, nil
}

func (s *SessionSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SessionSink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO game_sessions (id, quiz_id, phase, version, state, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	quiz_id = excluded.quiz_id,
	phase = excluded.phase,
	version = excluded.version,
	state = excluded.state,
	updated_at = excluded.updated_at
WHERE game_sessions.version < excluded.version`,
		snap.ID, snap.QuizID, string(snap.Phase), int64(snap.Version), string(state), toMillis(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

func (s *SessionSink) RemoveSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM game_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	return nil
}

// Load returns the last persisted snapshot of a session.
func (s *SessionSink) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM game_sessions WHERE id = ?`, sessionID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(state), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return snap, nil
}

// updatedBefore lists stored sessions not written since cutoff.
func (s *SessionSink) updatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM game_sessions WHERE updated_at < ? ORDER BY updated_at`, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}
