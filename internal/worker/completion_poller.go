package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/notify"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
)

// StatusBackend is the part of the backend client the poller needs.
type StatusBackend interface {
	GetStatus(ctx context.Context, diagnosticID string) (*model.DiagnosticStatusInfo, error)
	GetDiagnostic(ctx context.Context, diagnosticID string) (*model.Diagnostic, error)
}

// SummaryRefresher drops cached engagement summaries.
type SummaryRefresher interface {
	RefreshSummary(ctx context.Context, engagementID string) error
}

// CompletionPoller watches submitted diagnostics until the backend reports
// them completed or failed, then notifies the submitting user exactly once.
type CompletionPoller struct {
	backend   StatusBackend
	jobs      repository.JobRegistry
	notifier  notify.Notifier
	summaries SummaryRefresher
	interval  time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	stopped  bool
	active   map[string]struct{}
	notified map[string]struct{}
	pending  []model.DiagnosticJob
	wg       sync.WaitGroup
}

// NewCompletionPoller creates a new CompletionPoller.
func NewCompletionPoller(
	backend StatusBackend,
	jobs repository.JobRegistry,
	notifier notify.Notifier,
	summaries SummaryRefresher,
	interval time.Duration,
	log zerolog.Logger,
) *CompletionPoller {
	return &CompletionPoller{
		backend:   backend,
		jobs:      jobs,
		notifier:  notifier,
		summaries: summaries,
		interval:  interval,
		log:       log.With().Str("component", "completion_poller").Logger(),
		now:       time.Now,
		active:    make(map[string]struct{}),
		notified:  make(map[string]struct{}),
	}
}

// Start resumes polling for every live registry entry and rescans the
// registry on each tick. It blocks until ctx is cancelled and every polling
// goroutine has stopped. Call in a goroutine.
func (p *CompletionPoller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	p.log.Info().Dur("interval", p.interval).Msg("Worker started")

	for _, job := range pending {
		p.Watch(job)
	}
	p.rescan(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Worker stopping...")
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			p.wg.Wait()
			p.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			p.rescan(ctx)
		}
	}
}

// Watch starts polling job unless it is already being polled or was already
// announced. Jobs watched before Start are held until it runs.
func (p *CompletionPoller) Watch(job model.DiagnosticJob) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.pending = append(p.pending, job)
		return
	}
	if p.stopped || p.ctx.Err() != nil {
		return
	}
	if _, ok := p.active[job.ID]; ok {
		return
	}
	if _, ok := p.notified[job.ID]; ok {
		return
	}

	p.active[job.ID] = struct{}{}
	p.wg.Add(1)
	go p.poll(p.ctx, job)

	p.log.Debug().Str("diagnostic_id", job.ID).Msg("Polling diagnostic")
}

// Active reports how many diagnostics are currently being polled.
func (p *CompletionPoller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// rescan picks up registry entries written by other requests or instances.
// Entries older than the registry TTL are no longer listed and so are not
// started.
func (p *CompletionPoller) rescan(ctx context.Context) {
	jobs, err := p.jobs.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error().Err(err).Msg("List diagnostic jobs error")
		}
		return
	}
	for _, job := range jobs {
		p.Watch(job)
	}
}

func (p *CompletionPoller) poll(ctx context.Context, job model.DiagnosticJob) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.active, job.ID)
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.check(ctx, job) {
				return
			}
		}
	}
}

// check performs one status check and reports whether polling is finished.
// Errors are swallowed; the next tick tries again.
func (p *CompletionPoller) check(ctx context.Context, job model.DiagnosticJob) bool {
	info, err := p.backend.GetStatus(ctx, job.ID)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, backend.ErrUnauthorized):
			// Retrying will not help until the service token is fixed.
			p.log.Warn().Err(err).Str("diagnostic_id", job.ID).Msg("Status check rejected, check BACKEND_SERVICE_TOKEN")
		default:
			p.log.Debug().Err(err).Str("diagnostic_id", job.ID).Msg("Status check failed")
		}
		return false
	}
	if !info.Status.Terminal() {
		return false
	}

	p.finish(ctx, job, info.Status)
	return true
}

func (p *CompletionPoller) finish(ctx context.Context, job model.DiagnosticJob, status model.DiagnosticStatus) {
	log := p.log.With().Str("diagnostic_id", job.ID).Str("status", string(status)).Logger()

	// The registry entry is the claim: when instances share it, only the one
	// that removes the entry announces the result. If the registry is down,
	// the in-process set below still keeps this instance to one notification.
	removed, err := p.jobs.Complete(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to remove diagnostic job")
	} else if !removed {
		p.markNotified(job.ID)
		log.Debug().Msg("Diagnostic already completed elsewhere")
		return
	}

	if d, err := p.backend.GetDiagnostic(ctx, job.ID); err != nil {
		log.Debug().Err(err).Msg("Full diagnostic fetch failed")
	} else if job.EngagementID == "" {
		job.EngagementID = d.EngagementID
	}

	if already := p.markNotified(job.ID); already {
		return
	}

	if err := p.notifier.Notify(ctx, buildNotification(job, status, p.now())); err != nil {
		log.Error().Err(err).Msg("Failed to send notification")
	}
	if p.summaries != nil {
		if err := p.summaries.RefreshSummary(ctx, job.EngagementID); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh engagement summary")
		}
	}

	log.Info().Msg("Diagnostic finished")
}

// markNotified records id and reports whether it was already recorded.
func (p *CompletionPoller) markNotified(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, already := p.notified[id]
	p.notified[id] = struct{}{}
	return already
}

func buildNotification(job model.DiagnosticJob, status model.DiagnosticStatus, at time.Time) model.Notification {
	n := model.Notification{
		DiagnosticID: job.ID,
		EngagementID: job.EngagementID,
		UserID:       job.UserID,
		At:           at,
	}
	if status == model.DiagnosticCompleted {
		n.Type = model.NotificationDiagnosticCompleted
		n.Message = "Your diagnostic analysis is ready."
		n.Link = fmt.Sprintf("/engagements/%s", job.EngagementID)
		return n
	}
	n.Type = model.NotificationDiagnosticFailed
	n.Message = "Diagnostic processing failed. Please contact your advisor."
	return n
}
