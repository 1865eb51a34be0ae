package app

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFlushInterval is how often sessions with a failed save are retried.
const DefaultFlushInterval = 5 * time.Second

// FlushDirty re-saves every session whose last write-through failed and returns how
// many reached the sink.
func (g *Gateway) FlushDirty(ctx context.Context) int {
	var dirty []*Session
	g.store.Range(func(session *Session) bool {
		if session.dirty.Load() {
			dirty = append(dirty, session)
		}
		return true
	})

	flushed := 0
	for _, session := range dirty {
		if err := g.persist(ctx, session); err != nil {
			continue
		}
		flushed++
	}
	return flushed
}

// RunFlusher retries failed saves every interval until ctx is done. A non-positive
// interval disables retries.
func (g *Gateway) RunFlusher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.FlushDirty(ctx); n > 0 {
				slog.InfoContext(ctx, "flusher: recovered sessions", "count", n)
			}
		}
	}
}
