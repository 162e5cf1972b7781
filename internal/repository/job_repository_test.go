package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/diagnostic-gateway/internal/model"
)

func TestMemoryJobRegistry_PrunesExpiredOnList(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewMemoryJobRegistry(30 * time.Minute).WithClock(func() time.Time { return now })

	fresh := model.DiagnosticJob{ID: "d-fresh", EngagementID: "e1", Timestamp: now.Add(-5 * time.Minute)}
	stale := model.DiagnosticJob{ID: "d-stale", EngagementID: "e2", Timestamp: now.Add(-31 * time.Minute)}
	for _, j := range []model.DiagnosticJob{stale, fresh} {
		if err := reg.Register(ctx, j); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	jobs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "d-fresh" {
		t.Fatalf("List: got %+v, want only d-fresh", jobs)
	}

	// The stale entry is gone for good, even if the clock goes backwards.
	now = now.Add(-time.Hour)
	jobs, _ = reg.List(ctx)
	if len(jobs) != 1 {
		t.Errorf("List after prune: got %d jobs, want 1", len(jobs))
	}
}

func TestMemoryJobRegistry_CompleteAndOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	reg := NewMemoryJobRegistry(time.Hour)

	_ = reg.Register(ctx, model.DiagnosticJob{ID: "b", Timestamp: now.Add(-time.Minute)})
	_ = reg.Register(ctx, model.DiagnosticJob{ID: "a", Timestamp: now.Add(-2 * time.Minute)})
	_ = reg.Register(ctx, model.DiagnosticJob{ID: "c", Timestamp: now})

	jobs, _ := reg.List(ctx)
	if len(jobs) != 3 || jobs[0].ID != "a" || jobs[2].ID != "c" {
		t.Fatalf("List order: got %+v", jobs)
	}

	if removed, err := reg.Complete(ctx, "b"); err != nil || !removed {
		t.Fatalf("Complete: got %v, %v want true, nil", removed, err)
	}
	if removed, err := reg.Complete(ctx, "b"); err != nil || removed {
		t.Errorf("second Complete: got %v, %v want false, nil", removed, err)
	}
	if removed, err := reg.Complete(ctx, "missing"); err != nil || removed {
		t.Errorf("Complete(missing): got %v, %v want false, nil", removed, err)
	}
	jobs, _ = reg.List(ctx)
	if len(jobs) != 2 {
		t.Errorf("List after Complete: got %d, want 2", len(jobs))
	}
}

func TestMemoryEditsStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEditsStore()
	key := SessionKey{UserID: "u1", EngagementID: "e1"}
	other := SessionKey{UserID: "u2", EngagementID: "e1"}

	_ = store.SetAnswer(ctx, key, "a", "x")
	_ = store.SetAnswer(ctx, key, "b", []any{"p"})
	_ = store.SetAnswer(ctx, other, "a", "y")
	_ = store.SetPage(ctx, key, 2)
	_ = store.MarkPromoted(ctx, key)

	draft, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if draft.Edits["a"] != "x" || len(draft.Edits) != 2 {
		t.Errorf("Edits: got %v", draft.Edits)
	}
	if draft.PageIndex != 2 || !draft.Promoted {
		t.Errorf("meta: got page %d promoted %v", draft.PageIndex, draft.Promoted)
	}

	// Loaded drafts are copies.
	draft.Edits["a"] = "mutated"
	again, _ := store.Load(ctx, key)
	if again.Edits["a"] != "x" {
		t.Errorf("Load returned shared map")
	}

	_ = store.ClearFields(ctx, key, "a")
	again, _ = store.Load(ctx, key)
	if _, ok := again.Edits["a"]; ok {
		t.Error("ClearFields left a behind")
	}

	_ = store.ClearAll(ctx, key)
	again, _ = store.Load(ctx, key)
	if len(again.Edits) != 0 || again.PageIndex != 2 {
		t.Errorf("ClearAll: got edits %v page %d", again.Edits, again.PageIndex)
	}

	o, _ := store.Load(ctx, other)
	if o.Edits["a"] != "y" {
		t.Errorf("other session: got %v", o.Edits)
	}
}
