package app

import (
	"context"
	"fmt"
	"log/slog"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/telemetry"
)

// Gateway is the single entry point for session commands. Every mutation follows the
// same path: resolve the session, apply the transition under its lock, write the latest
// state through to the sink, publish to the room.
type Gateway struct {
	store       *SessionStore
	broadcaster *Broadcaster
	sink        PersistenceSink
}

func NewGateway(store *SessionStore, broadcaster *Broadcaster, sink PersistenceSink) *Gateway {
	if sink == nil {
		sink = NopSink{}
	}
	return &Gateway{store: store, broadcaster: broadcaster, sink: sink}
}

// CreateSession snapshots the quiz into a new lobby session.
func (g *Gateway) CreateSession(ctx context.Context, quizID string) (domain.Snapshot, error) {
	session, err := g.store.Create(ctx, quizID)
	telemetry.SetLiveSessions(g.store.Len())
	if err != nil {
		telemetry.ObserveCommand("create", err)
		return domain.Snapshot{}, err
	}
	slog.InfoContext(ctx, "gateway: session created", "session", session.ID(), "quiz", quizID)

	err = g.persist(ctx, session)
	telemetry.ObserveCommand("create", err)
	return session.Snapshot(), err
}

// Session returns the current snapshot without mutating anything.
func (g *Gateway) Session(_ context.Context, sessionID string) (domain.Snapshot, error) {
	return g.store.Snapshot(sessionID)
}

// JoinSession adds a named player to a session still in its lobby.
func (g *Gateway) JoinSession(ctx context.Context, sessionID, name string) (domain.Player, domain.Snapshot, error) {
	var player domain.Player
	snap, err := g.apply(ctx, "join", sessionID, func(s *Session) error {
		var err error
		player, err = s.Join(name)
		return err
	})
	return player, snap, err
}

func (g *Gateway) StartSession(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return g.apply(ctx, "start", sessionID, (*Session).Start)
}

// SubmitAnswer records (or replaces) a player's answer to the open question.
func (g *Gateway) SubmitAnswer(ctx context.Context, sessionID, playerID string, option int) (domain.Snapshot, error) {
	return g.apply(ctx, "answer", sessionID, func(s *Session) error {
		return s.Answer(playerID, option)
	})
}

func (g *Gateway) RevealResults(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return g.apply(ctx, "results", sessionID, (*Session).Reveal)
}

func (g *Gateway) Advance(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return g.apply(ctx, "next", sessionID, (*Session).Next)
}

func (g *Gateway) RestartSession(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return g.apply(ctx, "restart", sessionID, (*Session).Restart)
}

// EvictSession removes the session, closes its room and asks the sink to forget it.
func (g *Gateway) EvictSession(ctx context.Context, sessionID string) error {
	err := g.store.Evict(sessionID)
	telemetry.ObserveCommand("evict", err)
	telemetry.SetLiveSessions(g.store.Len())
	if err != nil {
		return err
	}
	g.broadcaster.CloseRoom(sessionID)
	slog.InfoContext(ctx, "gateway: session evicted", "session", sessionID)

	if remover, ok := g.sink.(SessionRemover); ok {
		if err := remover.RemoveSession(ctx, sessionID); err != nil {
			slog.ErrorContext(ctx, "gateway: remove persisted session", "session", sessionID, "error", err)
			return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}
	return nil
}

// Subscribe joins the session's room; the first snapshot on the channel is the current state.
func (g *Gateway) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	sub, err := g.broadcaster.Subscribe(ctx, sessionID)
	telemetry.ObserveCommand("subscribe", err)
	return sub, err
}

func (g *Gateway) Unsubscribe(sub *Subscription) {
	g.broadcaster.Unsubscribe(sub)
}

func (g *Gateway) apply(ctx context.Context, command, sessionID string, transition func(*Session) error) (domain.Snapshot, error) {
	session, err := g.store.Get(sessionID)
	if err != nil {
		telemetry.ObserveCommand(command, err)
		return domain.Snapshot{}, err
	}
	if err := transition(session); err != nil {
		telemetry.ObserveCommand(command, err)
		slog.DebugContext(ctx, "gateway: command rejected", "command", command, "session", sessionID, "error", err)
		return domain.Snapshot{}, err
	}

	persistErr := g.persist(ctx, session)
	if err := g.broadcaster.Publish(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "gateway: publish", "command", command, "session", sessionID, "error", err)
	}
	telemetry.ObserveCommand(command, persistErr)
	return session.Snapshot(), persistErr
}

// persist saves the newest snapshot of the session. Saves of one session are serialized
// and always read state after acquiring persistMu, so the sink ends at the latest version.
func (g *Gateway) persist(ctx context.Context, session *Session) error {
	session.persistMu.Lock()
	defer session.persistMu.Unlock()

	snap := session.Snapshot()
	if err := g.sink.SaveSession(ctx, snap); err != nil {
		session.dirty.Store(true)
		slog.ErrorContext(ctx, "gateway: persist session", "session", snap.ID, "version", snap.Version, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	session.dirty.Store(false)
	return nil
}
