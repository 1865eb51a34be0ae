package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// SnapshotSink keeps the newest snapshot of each session in memory.
type SnapshotSink struct {
	mu    sync.RWMutex
	saved map[string]domain.Snapshot
}

func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{saved: make(map[string]domain.Snapshot)}
}

// SaveSession ignores snapshots older than the one already held.
func (s *SnapshotSink) SaveSession(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.saved[snap.ID]; ok && current.Version > snap.Version {
		return nil
	}
	s.saved[snap.ID] = snap
	return nil
}

func (s *SnapshotSink) RemoveSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.saved, sessionID)
	s.mu.Unlock()
	return nil
}

// Latest returns the stored snapshot for sessionID.
func (s *SnapshotSink) Latest(sessionID string) (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.saved[sessionID]
	return snap, ok
}
