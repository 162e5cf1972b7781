package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingPruner struct {
	calls   atomic.Int32
	maxIdle atomic.Int64
}

func (p *countingPruner) PruneIdle(maxIdle time.Duration) int {
	p.calls.Add(1)
	p.maxIdle.Store(int64(maxIdle))
	return 1
}

func TestSessionSweeper_PrunesUntilCancelled(t *testing.T) {
	pruner := &countingPruner{}
	w := NewSessionSweeper(pruner, testInterval, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	waitFor(t, "sweep", func() bool { return pruner.calls.Load() >= 2 })
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}

	if got := time.Duration(pruner.maxIdle.Load()); got != time.Hour {
		t.Errorf("maxIdle: got %v, want 1h", got)
	}
}
