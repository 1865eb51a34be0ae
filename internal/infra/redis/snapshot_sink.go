package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// saveIfNewer writes the snapshot hash unless a newer version is already stored.
var saveIfNewer = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if current > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'state', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

// SnapshotSink writes session snapshots to quiz:session:{id}:state and keeps the
// id claim alive for as long as the session is active.
type SnapshotSink struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSnapshotSink(client redis.UniversalClient, ttl time.Duration) *SnapshotSink {
	return &SnapshotSink{client: client, ttl: ttl}
}

func (s *SnapshotSink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	keys := []string{stateKey(snap.ID), sessionKey(snap.ID)}
	if err := saveIfNewer.Run(ctx, s.client, keys, snap.Version, raw, s.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *SnapshotSink) RemoveSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, stateKey(sessionID)).Err()
}

// Load returns the stored snapshot of a session.
func (s *SnapshotSink) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	raw, err := s.client.HGet(ctx, stateKey(sessionID), "state").Bytes()
	if err == redis.Nil {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func stateKey(id string) string {
	return sessionKey(id) + ":state"
}
