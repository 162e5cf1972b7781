package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/diagnostic-gateway/internal/config"
)

// SessionKey identifies one user's survey session for one engagement.
type SessionKey struct {
	UserID       string
	EngagementID string
}

// SessionDraft is the locally held, not yet saved part of a survey session.
type SessionDraft struct {
	Edits     map[string]any
	PageIndex int
	Promoted  bool
}

// EditsStore persists local edits and navigation state between requests.
type EditsStore interface {
	Load(ctx context.Context, key SessionKey) (*SessionDraft, error)
	SetAnswer(ctx context.Context, key SessionKey, field string, value any) error
	ClearFields(ctx context.Context, key SessionKey, fields ...string) error
	ClearAll(ctx context.Context, key SessionKey) error
	SetPage(ctx context.Context, key SessionKey, page int) error
	MarkPromoted(ctx context.Context, key SessionKey) error
}

// ─── Redis ──────────────────────────────────────────────────────────

const (
	metaFieldPage     = "page"
	metaFieldPromoted = "promoted"
)

// RedisEditsStore keeps each answer as a JSON-encoded hash field, the same
// layout the autosave hash uses, so single answers can be written without
// rewriting the whole map.
type RedisEditsStore struct {
	rdb *redis.Client
}

// NewRedisEditsStore creates a new RedisEditsStore.
func NewRedisEditsStore(rdb *redis.Client) *RedisEditsStore {
	return &RedisEditsStore{rdb: rdb}
}

func (s *RedisEditsStore) Load(ctx context.Context, key SessionKey) (*SessionDraft, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.SurveyEditsKey(key.UserID, key.EngagementID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get edits: %w", err)
	}

	draft := &SessionDraft{Edits: make(map[string]any, len(raw))}
	for field, encoded := range raw {
		var v any
		if err := json.Unmarshal([]byte(encoded), &v); err != nil {
			return nil, fmt.Errorf("decode edit %s: %w", field, err)
		}
		draft.Edits[field] = v
	}

	meta, err := s.rdb.HGetAll(ctx, config.CacheKey.SurveyMetaKey(key.UserID, key.EngagementID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get survey meta: %w", err)
	}
	if p, err := strconv.Atoi(meta[metaFieldPage]); err == nil {
		draft.PageIndex = p
	}
	draft.Promoted = meta[metaFieldPromoted] == "1"

	return draft, nil
}

func (s *RedisEditsStore) SetAnswer(ctx context.Context, key SessionKey, field string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	return s.rdb.HSet(ctx, config.CacheKey.SurveyEditsKey(key.UserID, key.EngagementID), field, encoded).Err()
}

func (s *RedisEditsStore) ClearFields(ctx context.Context, key SessionKey, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.rdb.HDel(ctx, config.CacheKey.SurveyEditsKey(key.UserID, key.EngagementID), fields...).Err()
}

func (s *RedisEditsStore) ClearAll(ctx context.Context, key SessionKey) error {
	return s.rdb.Del(ctx, config.CacheKey.SurveyEditsKey(key.UserID, key.EngagementID)).Err()
}

func (s *RedisEditsStore) SetPage(ctx context.Context, key SessionKey, page int) error {
	return s.rdb.HSet(ctx, config.CacheKey.SurveyMetaKey(key.UserID, key.EngagementID), metaFieldPage, page).Err()
}

func (s *RedisEditsStore) MarkPromoted(ctx context.Context, key SessionKey) error {
	return s.rdb.HSet(ctx, config.CacheKey.SurveyMetaKey(key.UserID, key.EngagementID), metaFieldPromoted, "1").Err()
}

// ─── Memory ─────────────────────────────────────────────────────────

// MemoryEditsStore is an in-process EditsStore for single-instance
// deployments and tests.
type MemoryEditsStore struct {
	mu     sync.Mutex
	drafts map[SessionKey]*SessionDraft
}

// NewMemoryEditsStore creates an empty MemoryEditsStore.
func NewMemoryEditsStore() *MemoryEditsStore {
	return &MemoryEditsStore{drafts: make(map[SessionKey]*SessionDraft)}
}

func (s *MemoryEditsStore) draft(key SessionKey) *SessionDraft {
	d, ok := s.drafts[key]
	if !ok {
		d = &SessionDraft{Edits: make(map[string]any)}
		s.drafts[key] = d
	}
	return d
}

func (s *MemoryEditsStore) Load(_ context.Context, key SessionKey) (*SessionDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.draft(key)
	out := &SessionDraft{
		Edits:     make(map[string]any, len(d.Edits)),
		PageIndex: d.PageIndex,
		Promoted:  d.Promoted,
	}
	for k, v := range d.Edits {
		out.Edits[k] = v
	}
	return out, nil
}

func (s *MemoryEditsStore) SetAnswer(_ context.Context, key SessionKey, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft(key).Edits[field] = value
	return nil
}

func (s *MemoryEditsStore) ClearFields(_ context.Context, key SessionKey, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft(key)
	for _, f := range fields {
		delete(d.Edits, f)
	}
	return nil
}

func (s *MemoryEditsStore) ClearAll(_ context.Context, key SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft(key).Edits = make(map[string]any)
	return nil
}

func (s *MemoryEditsStore) SetPage(_ context.Context, key SessionKey, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft(key).PageIndex = page
	return nil
}

func (s *MemoryEditsStore) MarkPromoted(_ context.Context, key SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft(key).Promoted = true
	return nil
}
