package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-aware, etc).
type SessionRepository interface {
	// Insert stores the session unless its id is already taken; it reports success.
	Insert(session *Session) bool
	Get(id string) (*Session, bool)
	Delete(id string) bool
	Range(fn func(session *Session) bool)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const (
	sessionIDLength   = 5
	sessionIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxIDAttempts     = 16
)

// NewSessionID returns a short, human-typeable id. The alphabet has 32 symbols so a
// byte modulo its length is unbiased.
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = sessionIDAlphabet[int(buf[i])%len(sessionIDAlphabet)]
	}
	return string(buf), nil
}

// SessionStore owns the id -> Session mapping for the lifetime of the process.
type SessionStore struct {
	sessions SessionRepository
	quizzes  QuizRepository
	newID    func() (string, error)
	now      func() time.Time
}

// StoreOption customizes a SessionStore.
type StoreOption func(*SessionStore)

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(gen func() (string, error)) StoreOption {
	return func(s *SessionStore) { s.newID = gen }
}

// WithClock replaces the clock used for new sessions.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) { s.now = now }
}

func NewSessionStore(sessions SessionRepository, quizzes QuizRepository, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		sessions: sessions,
		quizzes:  quizzes,
		newID:    NewSessionID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create snapshots the quiz and registers a session under a fresh id.
func (s *SessionStore) Create(ctx context.Context, quizID string) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}
	snapshot := domain.NewQuizSnapshot(quiz)

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		session := newSessionWithClock(id, snapshot, s.now)
		if s.sessions.Insert(session) {
			return session, nil
		}
		slog.DebugContext(ctx, "store: session id collision, retrying", "id", id, "attempt", attempt+1)
	}
	return nil, domain.ErrIDSpaceExhausted
}

// Get looks a session up by id.
func (s *SessionStore) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Snapshot returns the current state of the session with the given id.
func (s *SessionStore) Snapshot(id string) (domain.Snapshot, error) {
	session, err := s.Get(id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Evict removes a session; it is no longer addressable afterwards.
func (s *SessionStore) Evict(id string) error {
	if !s.sessions.Delete(id) {
		return domain.ErrSessionNotFound
	}
	return nil
}

// IdleSince lists sessions whose last mutation happened before cutoff.
func (s *SessionStore) IdleSince(cutoff time.Time) []string {
	var ids []string
	s.sessions.Range(func(session *Session) bool {
		if session.LastActive().Before(cutoff) {
			ids = append(ids, session.ID())
		}
		return true
	})
	return ids
}

// Range calls fn for every live session until fn returns false.
func (s *SessionStore) Range(fn func(session *Session) bool) {
	s.sessions.Range(fn)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	n := 0
	s.sessions.Range(func(*Session) bool {
		n++
		return true
	})
	return n
}
