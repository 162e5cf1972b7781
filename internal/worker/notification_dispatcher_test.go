package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

type recordingPublisher struct {
	users []string
	err   error
}

func (p *recordingPublisher) PublishRaw(_ context.Context, userID string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.users = append(p.users, userID)
	return nil
}

func TestNotificationDispatcher_Dispatch(t *testing.T) {
	pub := &recordingPublisher{}
	w := NewNotificationDispatcher(nil, pub, zerolog.Nop())
	ctx := context.Background()

	raw, _ := json.Marshal(model.Notification{Type: model.NotificationDiagnosticCompleted, DiagnosticID: "d1", UserID: "u1"})
	if err := w.dispatch(ctx, raw); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(pub.users) != 1 || pub.users[0] != "u1" {
		t.Errorf("published to %v, want [u1]", pub.users)
	}

	// Garbage and recipient-less entries are dropped, not retried.
	if err := w.dispatch(ctx, []byte("{not json")); err != nil {
		t.Errorf("undecodable entry: got %v, want nil", err)
	}
	anon, _ := json.Marshal(model.Notification{DiagnosticID: "d2"})
	if err := w.dispatch(ctx, anon); err != nil {
		t.Errorf("entry without user: got %v, want nil", err)
	}
	if len(pub.users) != 1 {
		t.Errorf("dropped entries were published: %v", pub.users)
	}
}

func TestNotificationDispatcher_PublishErrorIsReturned(t *testing.T) {
	down := errors.New("redis down")
	w := NewNotificationDispatcher(nil, &recordingPublisher{err: down}, zerolog.Nop())

	raw, _ := json.Marshal(model.Notification{DiagnosticID: "d1", UserID: "u1"})
	if err := w.dispatch(context.Background(), raw); !errors.Is(err, down) {
		t.Errorf("got %v, want publish error for retry", err)
	}
}

func TestNotificationDispatcher_BackoffStopsOnCancel(t *testing.T) {
	w := NewNotificationDispatcher(nil, &recordingPublisher{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.backoff(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("backoff ignored cancellation, retry delay is %v", w.retryDelay)
	}

	w.retryDelay = 10 * time.Millisecond
	start := time.Now()
	w.backoff(context.Background())
	if elapsed := time.Since(start); elapsed < w.retryDelay {
		t.Errorf("backoff returned after %v, want at least %v", elapsed, w.retryDelay)
	}
}
