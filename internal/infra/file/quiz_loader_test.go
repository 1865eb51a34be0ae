package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"live-quiz-service/internal/domain"
)

const sample = `
quizzes:
  - id: marketing
    name: Marketing basics
    description: Warm-up round
    questions:
      - id: q1
        questionText: What is a VSL?
        options: ["A video sales letter", "A video codec"]
        correctAnswer: 0
        explanation: A sales presentation in video form.
      - id: q2
        questionText: What must every VSL contain?
        options: ["Special effects", "A clear call to action", "Celebrities"]
        correctAnswer: 1
`

func TestLoadReadsQuizzes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loader, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	quiz, err := loader.LoadQuiz(context.Background(), "marketing")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if quiz.Name != "Marketing basics" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if q := quiz.Questions[1]; q.Text != "What must every VSL contain?" || q.CorrectAnswer != 1 || len(q.Options) != 3 {
		t.Fatalf("unexpected question: %+v", q)
	}
	if got := loader.Quizzes(); len(got) != 1 || got[0].ID != "marketing" {
		t.Fatalf("unexpected quiz list: %+v", got)
	}
	if _, err := loader.LoadQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestParseRejectsInvalidContent(t *testing.T) {
	cases := map[string]string{
		"single option": `
quizzes:
  - id: bad
    questions:
      - id: q1
        options: ["only"]
`,
		"answer out of range": `
quizzes:
  - id: bad
    questions:
      - id: q1
        options: ["a", "b"]
        correctAnswer: 2
`,
		"duplicate quiz": `
quizzes:
  - id: same
  - id: same
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); !errors.Is(err, domain.ErrInvalidQuiz) {
				t.Fatalf("expected ErrInvalidQuiz, got %v", err)
			}
		})
	}
}

func TestRepoQuizFileParses(t *testing.T) {
	loader, err := Load(filepath.Join("..", "..", "..", "config", "quizzes.yaml"))
	if err != nil {
		t.Fatalf("load bundled quizzes: %v", err)
	}
	if len(loader.Quizzes()) == 0 {
		t.Fatalf("expected bundled quizzes")
	}
}
