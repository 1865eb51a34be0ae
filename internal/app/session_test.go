package app_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func capitals() domain.Quiz {
	return domain.Quiz{
		ID:          "capitals",
		Name:        "Capitals",
		Description: "Two quick ones",
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, CorrectAnswer: 1},
			{ID: "q2", Text: "Capital of Japan?", Options: []string{"Tokyo", "Osaka"}, CorrectAnswer: 0},
		},
	}
}

func newSession(t *testing.T) *app.Session {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return app.NewSessionWithClock("ABCDE", domain.NewQuizSnapshot(capitals()), func() time.Time {
		now = now.Add(time.Second)
		return now
	})
}

// sessionIn drives a fresh session into phase with one joined player.
func sessionIn(t *testing.T, phase domain.Phase) (*app.Session, domain.Player) {
	t.Helper()
	s := newSession(t)
	p, err := s.Join("Alice")
	require.NoError(t, err)
	switch phase {
	case domain.PhaseQuestion:
		require.NoError(t, s.Start())
	case domain.PhaseResults:
		require.NoError(t, s.Start())
		require.NoError(t, s.Reveal())
	case domain.PhaseFinished:
		require.NoError(t, s.Start())
		require.NoError(t, s.Reveal())
		require.NoError(t, s.Next())
		require.NoError(t, s.Reveal())
		require.NoError(t, s.Next())
	}
	require.Equal(t, phase, s.Snapshot().Phase)
	return s, p
}

func TestSession_PhaseTable(t *testing.T) {
	type command struct {
		name string
		run  func(s *app.Session, player domain.Player) error
	}
	commands := []command{
		{"join", func(s *app.Session, _ domain.Player) error { _, err := s.Join("Bob"); return err }},
		{"start", func(s *app.Session, _ domain.Player) error { return s.Start() }},
		{"answer", func(s *app.Session, p domain.Player) error { return s.Answer(p.ID, 0) }},
		{"reveal", func(s *app.Session, _ domain.Player) error { return s.Reveal() }},
		{"next", func(s *app.Session, _ domain.Player) error { return s.Next() }},
		{"restart", func(s *app.Session, _ domain.Player) error { return s.Restart() }},
	}

	allowed := map[domain.Phase]map[string]bool{
		domain.PhaseLobby:    {"join": true, "start": true, "restart": true},
		domain.PhaseQuestion: {"answer": true, "reveal": true, "restart": true},
		domain.PhaseResults:  {"next": true, "restart": true},
		domain.PhaseFinished: {"restart": true},
	}

	for phase, ok := range allowed {
		for _, cmd := range commands {
			t.Run(string(phase)+"/"+cmd.name, func(t *testing.T) {
				s, player := sessionIn(t, phase)
				before := s.Snapshot()

				err := cmd.run(s, player)
				after := s.Snapshot()

				if ok[cmd.name] {
					require.NoError(t, err)
					assert.Equal(t, before.Version+1, after.Version)
					return
				}
				require.Error(t, err)
				if cmd.name == "join" {
					assert.ErrorIs(t, err, domain.ErrSessionLocked)
				} else {
					assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				}
				assert.Equal(t, before, after, "rejected command must not change state")
			})
		}
	}
}

func TestSession_StartGuards(t *testing.T) {
	s := newSession(t)
	require.ErrorIs(t, s.Start(), domain.ErrInvalidTransition, "no players")

	empty := app.NewSession("EMPTY", domain.NewQuizSnapshot(domain.Quiz{ID: "empty"}))
	_, err := empty.Join("Alice")
	require.NoError(t, err)
	require.ErrorIs(t, empty.Start(), domain.ErrInvalidTransition, "no questions")
}

func TestSession_JoinNormalizesNames(t *testing.T) {
	s := newSession(t)

	p, err := s.Join("  Alice  ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	long, err := s.Join(strings.Repeat("ж", 30))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ж", 20), long.Name)

	_, err = s.Join("   ")
	require.ErrorIs(t, err, domain.ErrInvalidName)

	twin, err := s.Join("Alice")
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, twin.ID, "same name still gets a distinct id")
	assert.Len(t, s.Snapshot().Players, 3)
}

func TestSession_AnswerValidation(t *testing.T) {
	s, p := sessionIn(t, domain.PhaseQuestion)

	require.ErrorIs(t, s.Answer("ghost", 0), domain.ErrUnknownPlayer)
	require.ErrorIs(t, s.Answer(p.ID, 3), domain.ErrInvalidOption)
	require.ErrorIs(t, s.Answer(p.ID, -1), domain.ErrInvalidOption)

	require.NoError(t, s.Answer(p.ID, 0))
	require.NoError(t, s.Answer(p.ID, 2))
	assert.Equal(t, map[string]int{p.ID: 2}, s.Snapshot().Answers, "last answer wins")
}

func TestSession_RevealTalliesAndNextClears(t *testing.T) {
	s := newSession(t)
	alice, _ := s.Join("Alice")
	bob, _ := s.Join("Bob")
	carol, _ := s.Join("Carol")
	require.NoError(t, s.Start())

	require.NoError(t, s.Answer(alice.ID, 1))
	require.NoError(t, s.Answer(bob.ID, 1))
	require.NoError(t, s.Answer(carol.ID, 0))
	require.NoError(t, s.Reveal())

	snap := s.Snapshot()
	assert.Equal(t, map[int]int{0: 1, 1: 2}, snap.AnswerDistribution)
	sum := 0
	for _, n := range snap.AnswerDistribution {
		sum += n
	}
	assert.Equal(t, len(snap.Answers), sum)

	// A second reveal is rejected and leaves the tally alone.
	require.ErrorIs(t, s.Reveal(), domain.ErrInvalidTransition)
	assert.Equal(t, snap, s.Snapshot())

	require.NoError(t, s.Next())
	snap = s.Snapshot()
	assert.Equal(t, domain.PhaseQuestion, snap.Phase)
	assert.Equal(t, 1, snap.CurrentQuestionIndex)
	assert.Empty(t, snap.Answers)
	assert.Empty(t, snap.AnswerDistribution)
}

func TestSession_NextOnLastQuestionFinishes(t *testing.T) {
	s, p := sessionIn(t, domain.PhaseQuestion)
	require.NoError(t, s.Reveal())
	require.NoError(t, s.Next())
	require.NoError(t, s.Answer(p.ID, 0))
	require.NoError(t, s.Reveal())
	require.NoError(t, s.Next())

	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseFinished, snap.Phase)
	assert.Equal(t, 1, snap.CurrentQuestionIndex)
	assert.Equal(t, map[int]int{0: 1}, snap.AnswerDistribution, "final tally stays visible")
}

func TestSession_RestartKeepsPlayers(t *testing.T) {
	s, p := sessionIn(t, domain.PhaseResults)
	require.NoError(t, s.Restart())

	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseLobby, snap.Phase)
	assert.Equal(t, 0, snap.CurrentQuestionIndex)
	assert.Empty(t, snap.Answers)
	assert.Empty(t, snap.AnswerDistribution)
	assert.Equal(t, []domain.Player{p}, snap.Players)

	// Players from before the restart may play again.
	require.NoError(t, s.Start())
	require.NoError(t, s.Answer(p.ID, 1))
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	s, p := sessionIn(t, domain.PhaseQuestion)
	require.NoError(t, s.Answer(p.ID, 1))

	snap := s.Snapshot()
	snap.Answers[p.ID] = 0
	snap.Players[0].Name = "Mallory"

	fresh := s.Snapshot()
	assert.Equal(t, 1, fresh.Answers[p.ID])
	assert.Equal(t, "Alice", fresh.Players[0].Name)
}

func TestSession_QuizSnapshotIsolatedFromSource(t *testing.T) {
	quiz := capitals()
	s := app.NewSession("ABCDE", domain.NewQuizSnapshot(quiz))
	quiz.Questions[0].Options[0] = "Madrid"
	quiz.Questions[0].Text = "changed"

	q := s.Snapshot().Questions[0]
	assert.Equal(t, "Berlin", q.Options[0])
	assert.Equal(t, "Capital of France?", q.Text)
}

func TestSession_ConcurrentJoinAndStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := newSession(t)
		_, err := s.Join("Host")
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted []domain.Player
		)
		start := make(chan struct{})
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if p, err := s.Join("Racer"); err == nil {
					mu.Lock()
					accepted = append(accepted, p)
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, domain.ErrSessionLocked)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, s.Start())
		}()
		close(start)
		wg.Wait()

		snap := s.Snapshot()
		assert.Equal(t, domain.PhaseQuestion, snap.Phase)
		assert.Len(t, snap.Players, 1+len(accepted), "every accepted join is visible and no rejected join is")
		assert.Equal(t, uint64(1+1+len(accepted)+1), snap.Version)
	}
}

func TestSession_ConcurrentAnswers(t *testing.T) {
	s := newSession(t)
	players := make([]domain.Player, 40)
	for i := range players {
		p, err := s.Join("P")
		require.NoError(t, err)
		players[i] = p
	}
	require.NoError(t, s.Start())

	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(i int, p domain.Player) {
			defer wg.Done()
			assert.NoError(t, s.Answer(p.ID, i%3))
		}(i, p)
	}
	wg.Wait()
	require.NoError(t, s.Reveal())

	snap := s.Snapshot()
	assert.Len(t, snap.Answers, len(players))
	assert.Equal(t, map[int]int{0: 14, 1: 13, 2: 13}, snap.AnswerDistribution)
}
