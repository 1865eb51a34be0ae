package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-quiz-service/internal/domain"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeFailedPrecondition: http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert classifies err: coded errors pass through, domain errors map to their
// class, anything else is internal.
func Convert(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return New(CodeNotFound, WithMessagef("%s", rootMessage(err)), WithCause(err))
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionLocked):
		return New(CodeFailedPrecondition, WithMessagef("%s", rootMessage(err)), WithCause(err))
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrUnknownPlayer), errors.Is(err, domain.ErrInvalidQuiz):
		return New(CodeInvalidArgument, WithMessagef("%s", rootMessage(err)), WithCause(err))
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrIDSpaceExhausted):
		return New(CodeUnavailable, WithMessagef("%s", rootMessage(err)), WithCause(err))
	}

	return Internal(err)
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func Unauthenticated(message string) *Error {
	return New(CodeUnauthenticated, WithMessagef("%s", message))
}

func InvalidArgument(format string, args ...any) *Error {
	return New(CodeInvalidArgument, WithMessagef(format, args...))
}

// rootMessage picks the sentinel's text so internal detail (SQL, addresses) stays out of responses.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrSessionNotFound, domain.ErrQuizNotFound, domain.ErrInvalidTransition,
		domain.ErrSessionLocked, domain.ErrInvalidName, domain.ErrInvalidOption,
		domain.ErrUnknownPlayer, domain.ErrInvalidQuiz, domain.ErrPersistence, domain.ErrIDSpaceExhausted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
