package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

// claimTimeout bounds each id claim or release round-trip. It only takes effect on
// clients built with ContextTimeoutEnabled.
const claimTimeout = time.Second

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in a local map; Redis only holds a claim on each id
// (quiz:session:{id}) so ids still marked live by an earlier process are not reused.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

// Insert claims the id in Redis with SETNX. When Redis is unreachable the claim is
// skipped and only the local map decides. No lock is held during the round-trip.
func (s *SessionStore) Insert(session *app.Session) bool {
	id := session.ID()

	s.mu.RLock()
	_, taken := s.sessions[id]
	s.mu.RUnlock()
	if taken {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()
	claimed, err := s.client.SetNX(ctx, sessionKey(id), "1", s.ttl).Result()
	if err != nil {
		slog.WarnContext(ctx, "redis: claim session id", "session", id, "error", err)
	} else if !claimed {
		return false
	}

	s.mu.Lock()
	if _, taken := s.sessions[id]; taken {
		s.mu.Unlock()
		if claimed {
			s.release(id)
		}
		return false
	}
	s.sessions[id] = session
	s.mu.Unlock()
	return true
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.release(id)
	return true
}

func (s *SessionStore) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		slog.WarnContext(ctx, "redis: release session id", "session", id, "error", err)
	}
}

func (s *SessionStore) Range(fn func(session *app.Session) bool) {
	s.mu.RLock()
	sessions := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	for _, session := range sessions {
		if !fn(session) {
			return
		}
	}
}

func sessionKey(id string) string {
	return "quiz:session:" + id
}
