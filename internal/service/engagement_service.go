package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
)

// EngagementBackend is the part of the backend client used for engagement
// overviews and reports.
type EngagementBackend interface {
	GetEngagementSummary(ctx context.Context, engagementID string) (*model.EngagementSummary, error)
	DownloadReport(ctx context.Context, diagnosticID string) (*model.Report, error)
}

// EngagementService serves engagement summaries, reports and the caller's
// pending diagnostics.
type EngagementService struct {
	backend EngagementBackend
	cache   repository.SummaryCache
	jobs    repository.JobRegistry
	log     zerolog.Logger
}

// NewEngagementService creates a new EngagementService.
func NewEngagementService(backend EngagementBackend, cache repository.SummaryCache, jobs repository.JobRegistry, log zerolog.Logger) *EngagementService {
	return &EngagementService{
		backend: backend,
		cache:   cache,
		jobs:    jobs,
		log:     log.With().Str("component", "engagement_service").Logger(),
	}
}

// Summary returns the engagement summary, served from cache when possible.
func (s *EngagementService) Summary(ctx context.Context, userID, engagementID string) (*model.EngagementSummary, error) {
	cached, err := s.cache.Get(ctx, userID, engagementID)
	if err != nil {
		s.log.Warn().Err(err).Str("engagement_id", engagementID).Msg("Summary cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	summary, err := s.backend.GetEngagementSummary(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("get engagement summary: %w", err)
	}
	if summary.ID == "" {
		summary.ID = engagementID
	}
	if err := s.cache.Set(ctx, userID, summary); err != nil {
		s.log.Warn().Err(err).Str("engagement_id", engagementID).Msg("Summary cache write failed")
	}
	return summary, nil
}

// RefreshSummary drops every cached copy of the engagement's summary so the
// next read by any member refetches it.
func (s *EngagementService) RefreshSummary(ctx context.Context, engagementID string) error {
	return s.cache.Invalidate(ctx, engagementID)
}

// Report downloads the rendered report for a diagnostic.
func (s *EngagementService) Report(ctx context.Context, diagnosticID string) (*model.Report, error) {
	report, err := s.backend.DownloadReport(ctx, diagnosticID)
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	return report, nil
}

// PendingJobs lists the caller's diagnostics still awaiting completion.
func (s *EngagementService) PendingJobs(ctx context.Context, userID string) ([]model.DiagnosticJob, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]model.DiagnosticJob, 0, len(jobs))
	for _, j := range jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, nil
}
