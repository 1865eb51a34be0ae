package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"
)

// ReapIdle evicts every session whose last accepted mutation is older than cutoff.
func (g *Gateway) ReapIdle(ctx context.Context, cutoff time.Time) int {
	evicted := 0
	for _, id := range g.store.IdleSince(cutoff) {
		if err := g.EvictSession(ctx, id); err != nil {
			slog.WarnContext(ctx, "reaper: evict session", "session", id, "error", err)
			if !errors.Is(err, domain.ErrPersistence) {
				continue
			}
		}
		evicted++
	}
	return evicted
}

// RunReaper evicts sessions idle for longer than idle until ctx is done. A non-positive
// idle disables eviction and returns immediately.
func (g *Gateway) RunReaper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := g.ReapIdle(ctx, now.Add(-idle)); n > 0 {
				slog.InfoContext(ctx, "reaper: evicted idle sessions", "count", n)
			}
		}
	}
}
