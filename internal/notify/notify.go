// Package notify delivers diagnostic completion notifications to users.
//
// Notifications are queued on a Redis list by the completion poller and
// published to per-user PubSub channels by the dispatcher worker. The
// WebSocket endpoint subscribes to those channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// RecentLimit caps the per-user list of recent notifications.
const RecentLimit = 20

const recentTTL = 24 * time.Hour

// Notifier accepts a notification for delivery.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// ─── Outbox ─────────────────────────────────────────────────────────

// RedisOutbox queues notifications for the dispatcher worker.
type RedisOutbox struct {
	rdb *redis.Client
}

// NewRedisOutbox creates a new RedisOutbox.
func NewRedisOutbox(rdb *redis.Client) *RedisOutbox {
	return &RedisOutbox{rdb: rdb}
}

func (o *RedisOutbox) Notify(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return o.rdb.RPush(ctx, config.WorkerKey.NotificationOutboxQueue, raw).Err()
}

// ─── Publisher ──────────────────────────────────────────────────────

// RedisPublisher fans a notification out to the user's channel and keeps the
// latest ones so clients that connect later can catch up.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a new RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Notify publishes n immediately. It satisfies Notifier so deployments
// without the outbox worker can publish directly.
func (p *RedisPublisher) Notify(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return p.PublishRaw(ctx, n.UserID, raw)
}

// PublishRaw publishes an already encoded notification.
func (p *RedisPublisher) PublishRaw(ctx context.Context, userID string, raw []byte) error {
	recentKey := config.CacheKey.RecentNotificationsKey(userID)

	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey, raw)
	pipe.LTrim(ctx, recentKey, 0, RecentLimit-1)
	pipe.Expire(ctx, recentKey, recentTTL)
	pipe.Publish(ctx, config.CacheKey.UserNotificationChannel(userID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Recent returns up to limit of the user's latest notifications, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	raws, err := p.rdb.LRange(ctx, config.CacheKey.RecentNotificationsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(raws))
	for _, raw := range raws {
		var n model.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Subscription delivers raw notification payloads for one user. Messages is
// closed once the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Subscribe opens a PubSub subscription on the user's channel. The caller
// must Close it.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) Subscription {
	pubsub := p.rdb.Subscribe(ctx, config.CacheKey.UserNotificationChannel(userID))
	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan []byte),
		done:   make(chan struct{}),
	}
	go sub.forward()
	return sub
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

// ─── Memory ─────────────────────────────────────────────────────────

// Recorder keeps notifications in memory. Used for tests and single-process
// runs without Redis.
type Recorder struct {
	mu   sync.Mutex
	sent []model.Notification
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
