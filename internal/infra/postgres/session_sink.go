package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// SessionSink writes session snapshots to the game_sessions table. A row is only
// replaced by a strictly newer version.
type SessionSink struct {
	pool *pgxpool.Pool
}

func NewSessionSink(pool *pgxpool.Pool) *SessionSink {
	return &SessionSink{pool: pool}
}

func (s *SessionSink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO game_sessions (id, quiz_id, phase, version, state, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET quiz_id = EXCLUDED.quiz_id,
    phase = EXCLUDED.phase,
    version = EXCLUDED.version,
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at
WHERE game_sessions.version < EXCLUDED.version`,
		snap.ID, snap.QuizID, string(snap.Phase), int64(snap.Version), state, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

func (s *SessionSink) RemoveSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM game_sessions WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	return nil
}

// Load returns the last persisted snapshot of a session.
func (s *SessionSink) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM game_sessions WHERE id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return snap, nil
}
