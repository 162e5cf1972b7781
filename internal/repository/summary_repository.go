package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// SummaryCache caches backend engagement summaries per caller, since the
// backend scopes what each user may see. Get returns nil, nil on a miss.
// Invalidate drops every caller's copy for the engagement.
type SummaryCache interface {
	Get(ctx context.Context, userID, engagementID string) (*model.EngagementSummary, error)
	Set(ctx context.Context, userID string, summary *model.EngagementSummary) error
	Invalidate(ctx context.Context, engagementID string) error
}

type cachedSummary struct {
	Summary  model.EngagementSummary `json:"summary"`
	CachedAt time.Time               `json:"cached_at"`
}

func (c cachedSummary) fresh(now time.Time, ttl time.Duration) bool {
	return ttl <= 0 || now.Sub(c.CachedAt) < ttl
}

// RedisSummaryCache keeps one hash per engagement with a field per user.
// Entries carry their own timestamp; the hash TTL is a backstop.
type RedisSummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisSummaryCache creates a new RedisSummaryCache.
func NewRedisSummaryCache(rdb *redis.Client, ttl time.Duration) *RedisSummaryCache {
	return &RedisSummaryCache{rdb: rdb, ttl: ttl, now: time.Now}
}

func (c *RedisSummaryCache) Get(ctx context.Context, userID, engagementID string) (*model.EngagementSummary, error) {
	key := config.CacheKey.EngagementSummariesKey(engagementID)
	raw, err := c.rdb.HGet(ctx, key, userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	var entry cachedSummary
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if !entry.fresh(c.now(), c.ttl) {
		c.rdb.HDel(ctx, key, userID)
		return nil, nil
	}
	return &entry.Summary, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, userID string, summary *model.EngagementSummary) error {
	raw, err := json.Marshal(cachedSummary{Summary: *summary, CachedAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	key := config.CacheKey.EngagementSummariesKey(summary.ID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, userID, raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, engagementID string) error {
	return c.rdb.Del(ctx, config.CacheKey.EngagementSummariesKey(engagementID)).Err()
}

// MemorySummaryCache is an in-process SummaryCache.
type MemorySummaryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	summaries map[string]map[string]cachedSummary
}

// NewMemorySummaryCache creates an empty MemorySummaryCache. A zero ttl
// keeps entries until they are invalidated.
func NewMemorySummaryCache(ttl time.Duration) *MemorySummaryCache {
	return &MemorySummaryCache{
		ttl:       ttl,
		now:       time.Now,
		summaries: make(map[string]map[string]cachedSummary),
	}
}

func (c *MemorySummaryCache) Get(_ context.Context, userID, engagementID string) (*model.EngagementSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.summaries[engagementID][userID]
	if !ok {
		return nil, nil
	}
	if !entry.fresh(c.now(), c.ttl) {
		delete(c.summaries[engagementID], userID)
		return nil, nil
	}
	s := entry.Summary
	return &s, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, userID string, summary *model.EngagementSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	users, ok := c.summaries[summary.ID]
	if !ok {
		users = make(map[string]cachedSummary)
		c.summaries[summary.ID] = users
	}
	users[userID] = cachedSummary{Summary: *summary, CachedAt: c.now()}
	return nil
}

func (c *MemorySummaryCache) Invalidate(_ context.Context, engagementID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.summaries, engagementID)
	return nil
}
