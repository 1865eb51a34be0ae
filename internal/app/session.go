package app

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// maxNameLength bounds player display names, in code points.
const maxNameLength = 20

// Session is the authoritative in-memory state of one quiz run.
// All transitions are serialized by mu; nothing outside this file mutates the fields.
type Session struct {
	id   string
	quiz domain.QuizSnapshot
	now  func() time.Time

	mu                   sync.Mutex
	phase                domain.Phase
	players              []domain.Player
	playerIDs            map[string]struct{}
	currentQuestionIndex int
	answers              map[string]int
	distribution         map[int]int
	version              uint64
	updatedAt            time.Time

	// persistMu orders write-through saves of this session without holding mu.
	persistMu sync.Mutex
	// dirty is set while the sink holds an older state than memory.
	dirty atomic.Bool
}

// NewSession returns a lobby session at version 1 for the given quiz.
func NewSession(id string, quiz domain.QuizSnapshot) *Session {
	return newSessionWithClock(id, quiz, time.Now)
}

// NewSessionWithClock is like NewSession but stamps updates with now.
func NewSessionWithClock(id string, quiz domain.QuizSnapshot, now func() time.Time) *Session {
	return newSessionWithClock(id, quiz, now)
}

func newSessionWithClock(id string, quiz domain.QuizSnapshot, now func() time.Time) *Session {
	return &Session{
		id:           id,
		quiz:         quiz,
		now:          now,
		phase:        domain.PhaseLobby,
		players:      []domain.Player{},
		playerIDs:    make(map[string]struct{}),
		answers:      make(map[string]int),
		distribution: make(map[int]int),
		version:      1,
		updatedAt:    now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Join appends a new player. Only allowed while in the lobby.
func (s *Session) Join(name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLobby {
		return domain.Player{}, domain.ErrSessionLocked
	}
	name, err := normalizeName(name)
	if err != nil {
		return domain.Player{}, err
	}

	player := domain.Player{ID: s.newPlayerIDLocked(), Name: name}
	s.players = append(s.players, player)
	s.playerIDs[player.ID] = struct{}{}
	s.touchLocked()
	return player, nil
}

// Start moves the lobby to the first question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLobby || len(s.players) == 0 || len(s.quiz.Questions) == 0 {
		return domain.ErrInvalidTransition
	}
	s.phase = domain.PhaseQuestion
	s.currentQuestionIndex = 0
	s.touchLocked()
	return nil
}

// Answer records a player's choice for the current question. A later answer from the
// same player overwrites the earlier one while the question is open.
func (s *Session) Answer(playerID string, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestion {
		return domain.ErrInvalidTransition
	}
	if _, ok := s.playerIDs[playerID]; !ok {
		return domain.ErrUnknownPlayer
	}
	if option < 0 || option >= len(s.quiz.Questions[s.currentQuestionIndex].Options) {
		return domain.ErrInvalidOption
	}
	s.answers[playerID] = option
	s.touchLocked()
	return nil
}

// Reveal closes the current question and computes the answer distribution.
func (s *Session) Reveal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestion {
		return domain.ErrInvalidTransition
	}
	s.distribution = tally(s.answers)
	s.phase = domain.PhaseResults
	s.touchLocked()
	return nil
}

// Next advances from results to the following question, or finishes the quiz.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseResults {
		return domain.ErrInvalidTransition
	}
	if s.currentQuestionIndex+1 < len(s.quiz.Questions) {
		s.currentQuestionIndex++
		s.phase = domain.PhaseQuestion
		s.answers = make(map[string]int)
		s.distribution = make(map[int]int)
	} else {
		s.phase = domain.PhaseFinished
	}
	s.touchLocked()
	return nil
}

// Restart returns the session to the lobby from any phase, keeping its players.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = domain.PhaseLobby
	s.currentQuestionIndex = 0
	s.answers = make(map[string]int)
	s.distribution = make(map[int]int)
	s.touchLocked()
	return nil
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastActive reports when the session last accepted a mutation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) snapshotLocked() domain.Snapshot {
	answers := make(map[string]int, len(s.answers))
	for playerID, option := range s.answers {
		answers[playerID] = option
	}
	distribution := make(map[int]int, len(s.distribution))
	for option, count := range s.distribution {
		distribution[option] = count
	}

	return domain.Snapshot{
		ID:                   s.id,
		QuizID:               s.quiz.QuizID,
		QuizName:             s.quiz.Name,
		QuizDescription:      s.quiz.Description,
		Phase:                s.phase,
		Players:              append([]domain.Player{}, s.players...),
		Questions:            s.quiz.Questions,
		CurrentQuestionIndex: s.currentQuestionIndex,
		Answers:              answers,
		AnswerDistribution:   distribution,
		Version:              s.version,
		UpdatedAt:            s.updatedAt,
	}
}

func (s *Session) touchLocked() {
	s.version++
	s.updatedAt = s.now()
}

// newPlayerIDLocked returns an id never handed out by this session before.
func (s *Session) newPlayerIDLocked() string {
	for {
		id := uuid.NewString()
		if _, taken := s.playerIDs[id]; !taken {
			return id
		}
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrInvalidName
	}
	if runes := []rune(name); len(runes) > maxNameLength {
		name = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	return name, nil
}

func tally(answers map[string]int) map[int]int {
	distribution := make(map[int]int)
	for _, option := range answers {
		distribution[option]++
	}
	return distribution
}
