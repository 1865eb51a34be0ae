package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"capitals": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected cache hit, loader calls %d", got)
	}

	repo.Invalidate("capitals")
	if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
		t.Fatalf("get quiz after invalidate: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", got)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"capitals": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", got)
	}
}

func TestQuizRepositoryRejectsInvalidQuiz(t *testing.T) {
	bad := sampleQuiz()
	bad.Questions[0].CorrectAnswer = 7
	repo := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{"bad": bad}), time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "bad"); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected ErrInvalidQuiz, got %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestQuizRepositorySharesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"capitals": sampleQuiz()}),
		gate:       release,
	}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "capitals"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected a single shared load, got %d", got)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "capitals",
		Name: "Capitals",
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, CorrectAnswer: 1},
			{ID: "q2", Text: "Capital of Japan?", Options: []string{"Tokyo", "Osaka"}, CorrectAnswer: 0},
		},
	}
}
