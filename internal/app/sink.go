package app

import (
	"context"
	"errors"

	"live-quiz-service/internal/domain"
)

// PersistenceSink receives a write-through copy of every accepted mutation.
// Implementations must tolerate repeated saves of the same version.
type PersistenceSink interface {
	SaveSession(ctx context.Context, snap domain.Snapshot) error
}

// SessionRemover is implemented by sinks that drop stored state when a session is evicted.
type SessionRemover interface {
	RemoveSession(ctx context.Context, sessionID string) error
}

// NopSink discards snapshots.
type NopSink struct{}

func (NopSink) SaveSession(context.Context, domain.Snapshot) error { return nil }

// FanoutSink saves to every sink in order and joins their errors.
type FanoutSink []PersistenceSink

func (f FanoutSink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	var errs []error
	for _, sink := range f {
		if err := sink.SaveSession(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f FanoutSink) RemoveSession(ctx context.Context, sessionID string) error {
	var errs []error
	for _, sink := range f {
		if remover, ok := sink.(SessionRemover); ok {
			if err := remover.RemoveSession(ctx, sessionID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
