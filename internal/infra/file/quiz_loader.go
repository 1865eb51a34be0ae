// Package file loads quiz content from a YAML document on disk.
package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

type document struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// QuizLoader serves quizzes parsed from a YAML file at startup.
type QuizLoader struct {
	quizzes map[string]domain.Quiz
	order   []string
}

// Load reads and validates every quiz in path.
func Load(path string) (*QuizLoader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a loader from YAML bytes.
func Parse(raw []byte) (*QuizLoader, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse quiz file: %w", err)
	}

	loader := &QuizLoader{quizzes: make(map[string]domain.Quiz, len(doc.Quizzes))}
	for _, quiz := range doc.Quizzes {
		if quiz.ID == "" {
			return nil, fmt.Errorf("quiz without id: %w", domain.ErrInvalidQuiz)
		}
		if _, dup := loader.quizzes[quiz.ID]; dup {
			return nil, fmt.Errorf("duplicate quiz %q: %w", quiz.ID, domain.ErrInvalidQuiz)
		}
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		loader.quizzes[quiz.ID] = quiz
		loader.order = append(loader.order, quiz.ID)
	}
	return loader, nil
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// Quizzes returns every quiz in file order.
func (l *QuizLoader) Quizzes() []domain.Quiz {
	out := make([]domain.Quiz, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.quizzes[id])
	}
	return out
}
