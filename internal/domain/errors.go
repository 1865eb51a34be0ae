package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session has the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates quiz content that cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrInvalidTransition is returned when a command is not valid in the current phase.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionLocked is returned when joining a session that already left the lobby.
	ErrSessionLocked = errors.New("session already started")
	// ErrInvalidName indicates an empty player name.
	ErrInvalidName = errors.New("invalid player name")
	// ErrInvalidOption indicates an answer index outside the current question's options.
	ErrInvalidOption = errors.New("invalid option")
	// ErrUnknownPlayer is returned when a player id is not part of the session.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrPersistence wraps write-through failures; in-memory state stays authoritative.
	ErrPersistence = errors.New("persistence failed")
	// ErrIDSpaceExhausted is returned when no free session id could be generated.
	ErrIDSpaceExhausted = errors.New("could not allocate session id")
)
