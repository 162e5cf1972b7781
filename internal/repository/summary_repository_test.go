package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/diagnostic-gateway/internal/model"
)

func TestMemorySummaryCache_InvalidateDropsEveryMember(t *testing.T) {
	ctx := context.Background()
	cache := NewMemorySummaryCache(time.Hour)
	for _, user := range []string{"u1", "u2"} {
		if err := cache.Set(ctx, user, &model.EngagementSummary{ID: "e1", Title: "Acme"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	_ = cache.Set(ctx, "u1", &model.EngagementSummary{ID: "e2", Title: "Other"})

	if err := cache.Invalidate(ctx, "e1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	for _, user := range []string{"u1", "u2"} {
		if s, _ := cache.Get(ctx, user, "e1"); s != nil {
			t.Errorf("%s still cached after invalidate: %+v", user, s)
		}
	}
	if s, _ := cache.Get(ctx, "u1", "e2"); s == nil || s.Title != "Other" {
		t.Errorf("other engagement: got %+v, want Other", s)
	}
}

func TestMemorySummaryCache_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemorySummaryCache(5 * time.Minute)
	cache.now = func() time.Time { return now }

	_ = cache.Set(ctx, "u1", &model.EngagementSummary{ID: "e1"})
	now = now.Add(4 * time.Minute)
	_ = cache.Set(ctx, "u2", &model.EngagementSummary{ID: "e1"})
	now = now.Add(2 * time.Minute)

	if s, _ := cache.Get(ctx, "u1", "e1"); s != nil {
		t.Errorf("u1: got %+v, want expired", s)
	}
	if s, _ := cache.Get(ctx, "u2", "e1"); s == nil {
		t.Error("u2: got nil, want a fresh entry")
	}
}
