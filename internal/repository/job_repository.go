package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// JobRegistry tracks submitted diagnostics until the backend finishes them.
// List drops entries older than the registry's TTL. Complete reports whether
// this call removed the entry, so exactly one caller across instances sharing
// the registry wins a completion.
type JobRegistry interface {
	Register(ctx context.Context, job model.DiagnosticJob) error
	List(ctx context.Context) ([]model.DiagnosticJob, error)
	Complete(ctx context.Context, diagnosticID string) (bool, error)
}

func sortJobs(jobs []model.DiagnosticJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Timestamp.Before(jobs[j].Timestamp)
	})
}

// ─── Redis ──────────────────────────────────────────────────────────

// RedisJobRegistry stores one hash field per diagnostic under a single key.
// Field-level writes keep concurrent gateway instances from overwriting each
// other's entries.
type RedisJobRegistry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisJobRegistry creates a new RedisJobRegistry.
func NewRedisJobRegistry(rdb *redis.Client, ttl time.Duration) *RedisJobRegistry {
	return &RedisJobRegistry{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisJobRegistry) Register(ctx context.Context, job model.DiagnosticJob) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return r.rdb.HSet(ctx, config.CacheKey.DiagnosticJobsKey(), job.ID, encoded).Err()
}

func (r *RedisJobRegistry) List(ctx context.Context) ([]model.DiagnosticJob, error) {
	key := config.CacheKey.DiagnosticJobsKey()
	raw, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	now := r.now()
	jobs := make([]model.DiagnosticJob, 0, len(raw))
	var stale []string
	for id, encoded := range raw {
		var job model.DiagnosticJob
		if err := json.Unmarshal([]byte(encoded), &job); err != nil || job.Expired(now, r.ttl) {
			stale = append(stale, id)
			continue
		}
		jobs = append(jobs, job)
	}

	if len(stale) > 0 {
		if err := r.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune jobs: %w", err)
		}
	}

	sortJobs(jobs)
	return jobs, nil
}

func (r *RedisJobRegistry) Complete(ctx context.Context, diagnosticID string) (bool, error) {
	n, err := r.rdb.HDel(ctx, config.CacheKey.DiagnosticJobsKey(), diagnosticID).Result()
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return n > 0, nil
}

// ─── Memory ─────────────────────────────────────────────────────────

// MemoryJobRegistry is an in-process JobRegistry.
type MemoryJobRegistry struct {
	mu   sync.Mutex
	jobs map[string]model.DiagnosticJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryJobRegistry creates an empty MemoryJobRegistry.
func NewMemoryJobRegistry(ttl time.Duration) *MemoryJobRegistry {
	return &MemoryJobRegistry{
		jobs: make(map[string]model.DiagnosticJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the registry's time source.
func (r *MemoryJobRegistry) WithClock(now func() time.Time) *MemoryJobRegistry {
	r.now = now
	return r
}

func (r *MemoryJobRegistry) Register(_ context.Context, job model.DiagnosticJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryJobRegistry) List(_ context.Context) ([]model.DiagnosticJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	jobs := make([]model.DiagnosticJob, 0, len(r.jobs))
	for id, job := range r.jobs {
		if job.Expired(now, r.ttl) {
			delete(r.jobs, id)
			continue
		}
		jobs = append(jobs, job)
	}
	sortJobs(jobs)
	return jobs, nil
}

func (r *MemoryJobRegistry) Complete(_ context.Context, diagnosticID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[diagnosticID]
	delete(r.jobs, diagnosticID)
	return ok, nil
}
