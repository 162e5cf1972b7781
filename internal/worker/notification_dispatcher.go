package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// Publisher fans an encoded notification out to a user's subscribers.
type Publisher interface {
	PublishRaw(ctx context.Context, userID string, raw []byte) error
}

// NotificationDispatcher consumes notification_outbox_queue and publishes
// each notification to the recipient's channel.
type NotificationDispatcher struct {
	rdb        *redis.Client
	publisher  Publisher
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewNotificationDispatcher creates a new NotificationDispatcher.
func NewNotificationDispatcher(rdb *redis.Client, publisher Publisher, log zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		rdb:        rdb,
		publisher:  publisher,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "notification_dispatcher").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *NotificationDispatcher) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Deliver whatever is still queued before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotificationDispatcher) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.NotificationOutboxQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if err := w.dispatch(ctx, []byte(result[1])); err != nil {
		w.log.Error().Err(err).Dur("retry_in", w.retryDelay).Msg("Publish error")
		// Push back to queue for retry, even when shutdown cancelled the publish.
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.NotificationOutboxQueue, result[1])
		w.backoff(ctx)
	}
}

// backoff waits out the retry delay or until ctx is done.
func (w *NotificationDispatcher) backoff(ctx context.Context) {
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// dispatch publishes one queued notification. Undecodable entries are
// dropped.
func (w *NotificationDispatcher) dispatch(ctx context.Context, raw []byte) error {
	var n model.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil
	}
	if n.UserID == "" {
		w.log.Warn().Str("diagnostic_id", n.DiagnosticID).Msg("Notification without recipient dropped")
		return nil
	}

	if err := w.publisher.PublishRaw(ctx, n.UserID, raw); err != nil {
		return err
	}
	w.log.Debug().
		Str("user_id", n.UserID).
		Str("diagnostic_id", n.DiagnosticID).
		Str("type", string(n.Type)).
		Msg("Notification published")
	return nil
}

// drain publishes all remaining items in the queue before shutdown.
func (w *NotificationDispatcher) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.NotificationOutboxQueue).Result()
		if err != nil {
			break
		}

		if err := w.dispatch(ctx, []byte(result)); err != nil {
			w.log.Error().Err(err).Msg("Drain publish error")
			w.rdb.RPush(ctx, config.WorkerKey.NotificationOutboxQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
