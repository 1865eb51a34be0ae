package domain

import (
	"fmt"
	"time"
)

// Phase is the stage of a session's state machine.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
	PhaseFinished Phase = "finished"
)

// Question models a multiple-choice question with exactly one correct option.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"questionText" yaml:"questionText"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
}

// Validate checks the question is playable.
func (q Question) Validate() error {
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q: need at least 2 options, got %d: %w", q.ID, len(q.Options), ErrInvalidQuiz)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("question %q: correct answer %d out of range: %w", q.ID, q.CorrectAnswer, ErrInvalidQuiz)
	}
	return nil
}

// Quiz is a named collection of questions as held by the content store.
type Quiz struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Validate checks every question and that question ids are unique.
func (q Quiz) Validate() error {
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, ok := seen[question.ID]; ok {
			return fmt.Errorf("quiz %q: duplicate question id %q: %w", q.ID, question.ID, ErrInvalidQuiz)
		}
		seen[question.ID] = struct{}{}
		if err := question.Validate(); err != nil {
			return fmt.Errorf("quiz %q: %w", q.ID, err)
		}
	}
	return nil
}

// QuizSnapshot is the immutable copy of a quiz captured when a session is created.
type QuizSnapshot struct {
	QuizID      string
	Name        string
	Description string
	Questions   []Question
}

// NewQuizSnapshot deep-copies the quiz so later edits to the source never leak into a session.
func NewQuizSnapshot(q Quiz) QuizSnapshot {
	questions := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		questions[i] = question
	}
	return QuizSnapshot{
		QuizID:      q.ID,
		Name:        q.Name,
		Description: q.Description,
		Questions:   questions,
	}
}

// Player is a participant of a session.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the full observable state of a session at one point in time.
type Snapshot struct {
	ID                   string         `json:"id"`
	QuizID               string         `json:"quizId"`
	QuizName             string         `json:"quizName"`
	QuizDescription      string         `json:"quizDescription"`
	Phase                Phase          `json:"phase"`
	Players              []Player       `json:"players"`
	Questions            []Question     `json:"questions"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	Answers              map[string]int `json:"answers"`
	AnswerDistribution   map[int]int    `json:"answerDistribution"`
	Version              uint64         `json:"version"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}
