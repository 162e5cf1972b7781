package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionPruner drops idle in-memory survey sessions.
type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) int
}

// SessionSweeper periodically evicts survey sessions nobody has touched for
// maxIdle. Unsaved edits live in the edits store and survive eviction.
type SessionSweeper struct {
	sessions SessionPruner
	interval time.Duration
	maxIdle  time.Duration
	log      zerolog.Logger
}

// NewSessionSweeper creates a new SessionSweeper.
func NewSessionSweeper(sessions SessionPruner, interval, maxIdle time.Duration, log zerolog.Logger) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		maxIdle:  maxIdle,
		log:      log.With().Str("component", "session_sweeper").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *SessionSweeper) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if n := w.sessions.PruneIdle(w.maxIdle); n > 0 {
				w.log.Debug().Int("count", n).Msg("Evicted idle survey sessions")
			}
		}
	}
}
