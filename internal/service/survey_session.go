package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/survey"
	"golang.org/x/sync/singleflight"
)

// Survey session errors.
var (
	ErrDiagnosticNotFound = errors.New("no diagnostic exists for this engagement")
	ErrSessionNotLoaded   = errors.New("survey session is not loaded")
	ErrUnknownField       = errors.New("field is not part of the survey")
	ErrFirstPage          = errors.New("already on the first page")
	ErrLastPage           = errors.New("already on the last page")
	ErrNotLastPage        = errors.New("diagnostic can only be submitted from the last page")
	ErrDiagnosticLocked   = errors.New("diagnostic is no longer editable")
	ErrSaveFailed         = errors.New("failed to save answers")
	ErrSubmitFailed       = errors.New("failed to submit diagnostic")
)

// DiagnosticBackend is the part of the backend client a survey session uses.
type DiagnosticBackend interface {
	GetDiagnosticForEngagement(ctx context.Context, engagementID string) (*model.Diagnostic, error)
	PatchResponses(ctx context.Context, diagnosticID string, responses map[string]any, status model.DiagnosticStatus) (*model.Diagnostic, error)
	Submit(ctx context.Context, diagnosticID, completedBy string) (*model.Diagnostic, error)
	UpdateEngagementStatus(ctx context.Context, engagementID string, status model.EngagementStatus) error
}

// JobWatcher starts completion polling for a submitted diagnostic.
type JobWatcher interface {
	Watch(job model.DiagnosticJob)
}

// SurveySession drives one user's paginated survey for one engagement.
//
// The mutex guards the session fields and the edits store writes that mirror
// them. Backend calls are made without holding it. opMu serializes the
// operations that write to the backend (save, next, submit); identical
// concurrent calls are first coalesced by flight.
type SurveySession struct {
	key     repository.SessionKey
	schema  *survey.Schema
	backend DiagnosticBackend
	store   repository.EditsStore
	jobs    repository.JobRegistry
	watcher JobWatcher
	log     zerolog.Logger
	now     func() time.Time

	flight     singleflight.Group
	opMu       sync.Mutex
	background sync.WaitGroup

	mu         sync.Mutex
	state      model.SessionState
	diagnostic *model.Diagnostic
	edits      map[string]any
	page       int
	promoted   bool
	lastErr    error
}

// NewSurveySession creates an uninitialized session. Call Load before use.
func NewSurveySession(
	key repository.SessionKey,
	schema *survey.Schema,
	backend DiagnosticBackend,
	store repository.EditsStore,
	jobs repository.JobRegistry,
	watcher JobWatcher,
	log zerolog.Logger,
) *SurveySession {
	return &SurveySession{
		key:     key,
		schema:  schema,
		backend: backend,
		store:   store,
		jobs:    jobs,
		watcher: watcher,
		log: log.With().
			Str("component", "survey_session").
			Str("user_id", key.UserID).
			Str("engagement_id", key.EngagementID).
			Logger(),
		now:   time.Now,
		state: model.SessionUninitialized,
		edits: make(map[string]any),
	}
}

// ─── Loading ────────────────────────────────────────────────────────

// Load fetches the engagement's diagnostic and restores unsaved edits and the
// page index. A missing diagnostic moves the session to not_found for good.
func (s *SurveySession) Load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case model.SessionNotFound:
		s.mu.Unlock()
		return ErrDiagnosticNotFound
	case model.SessionSubmitting, model.SessionSaving:
		s.mu.Unlock()
		return nil
	}
	s.state = model.SessionLoading
	s.mu.Unlock()

	d, err := s.backend.GetDiagnosticForEngagement(ctx, s.key.EngagementID)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if errors.Is(err, backend.ErrNotFound) {
			s.state = model.SessionNotFound
			s.lastErr = ErrDiagnosticNotFound
			return ErrDiagnosticNotFound
		}
		s.failLocked(err)
		return fmt.Errorf("load diagnostic: %w", err)
	}

	draft, err := s.store.Load(ctx, s.key)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.failLocked(err)
		return fmt.Errorf("load edits: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Responses == nil {
		d.Responses = make(map[string]any)
	}
	s.diagnostic = d
	s.edits = draft.Edits
	if s.edits == nil {
		s.edits = make(map[string]any)
	}
	s.page = clampPage(draft.PageIndex, s.schema.PageCount())
	s.promoted = draft.Promoted
	s.lastErr = nil

	if d.Status.Editable() {
		s.state = model.SessionReady
	} else {
		s.state = model.SessionSubmitted
	}

	s.log.Debug().
		Str("diagnostic_id", d.ID).
		Str("status", string(d.Status)).
		Int("page", s.page).
		Int("edits", len(s.edits)).
		Msg("Survey session loaded")
	return nil
}

// ─── Responses ──────────────────────────────────────────────────────

// Merged returns the remote responses with local edits applied on top. The
// returned map is a fresh copy.
func (s *SurveySession) Merged() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergedLocked()
}

func (s *SurveySession) mergedLocked() map[string]any {
	var remote map[string]any
	if s.diagnostic != nil {
		remote = s.diagnostic.Responses
	}
	merged := make(map[string]any, len(remote)+len(s.edits))
	for k, v := range remote {
		merged[k] = v
	}
	for k, v := range s.edits {
		merged[k] = v
	}
	return merged
}

// RecordAnswer stores value as a local edit. Nothing is sent to the backend.
func (s *SurveySession) RecordAnswer(ctx context.Context, field string, value any) error {
	if !s.schema.HasField(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return err
	}
	if err := s.store.SetAnswer(ctx, s.key, field, value); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	s.edits[field] = value
	return nil
}

// ─── Saving ─────────────────────────────────────────────────────────

// SaveCurrentPage sends the visible, answered fields of the current page as a
// partial update. Concurrent calls for the same page share one backend call.
// Local edits survive a failed save.
func (s *SurveySession) SaveCurrentPage(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	page := s.page
	s.mu.Unlock()

	_, err, shared := s.flight.Do("save:"+strconv.Itoa(page), func() (any, error) {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return nil, s.savePage(ctx, page)
	})
	if shared {
		s.log.Debug().Int("page", page).Msg("Coalesced concurrent page save")
	}
	return err
}

// savePage must be called with opMu held.
func (s *SurveySession) savePage(ctx context.Context, page int) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	payload := s.schema.PageAnswers(page, s.mergedLocked())
	if len(payload) == 0 {
		s.mu.Unlock()
		return nil
	}
	diagnosticID := s.diagnostic.ID
	s.state = model.SessionSaving
	s.mu.Unlock()

	updated, err := s.backend.PatchResponses(ctx, diagnosticID, payload, model.DiagnosticInProgress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failLocked(err)
		s.log.Warn().Err(err).Int("page", page).Msg("Page save failed, edits kept")
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	s.applyRemoteLocked(updated, payload)

	// Only clear edits that were not changed while the save was in flight.
	var saved []string
	for field, sent := range payload {
		if cur, ok := s.edits[field]; ok && reflect.DeepEqual(cur, sent) {
			saved = append(saved, field)
		}
	}
	if err := s.store.ClearFields(ctx, s.key, saved...); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear saved edits")
	}
	for _, field := range saved {
		delete(s.edits, field)
	}

	s.state = model.SessionReady
	s.lastErr = nil
	return nil
}

// applyRemoteLocked adopts the backend's copy of the diagnostic. If the
// response omits answers, the sent ones are folded into the previous copy.
func (s *SurveySession) applyRemoteLocked(updated *model.Diagnostic, sent map[string]any) {
	if updated == nil {
		for k, v := range sent {
			s.diagnostic.Responses[k] = v
		}
		return
	}
	if updated.Responses == nil {
		updated.Responses = s.diagnostic.Responses
		for k, v := range sent {
			updated.Responses[k] = v
		}
	}
	if !s.diagnostic.Status.CanAdvanceTo(updated.Status) {
		updated.Status = s.diagnostic.Status
	}
	s.diagnostic = updated
}

// ─── Navigation ─────────────────────────────────────────────────────

// Next saves the current page and advances once the save succeeds. Leaving
// the first page for the first time promotes the engagement to active.
// Concurrent calls from the same page share one save and move one page.
func (s *SurveySession) Next(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	from := s.page
	s.mu.Unlock()

	_, err, shared := s.flight.Do("next:"+strconv.Itoa(from), func() (any, error) {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return nil, s.next(ctx, from)
	})
	if shared {
		s.log.Debug().Int("page", from).Msg("Coalesced concurrent next")
	}
	return err
}

func (s *SurveySession) next(ctx context.Context, from int) error {
	s.mu.Lock()
	if s.page != from {
		// Someone else already moved the session.
		s.mu.Unlock()
		return nil
	}
	if from >= s.schema.PageCount()-1 {
		s.mu.Unlock()
		return ErrLastPage
	}
	editable := s.editableLocked() == nil
	s.mu.Unlock()

	// A locked diagnostic can still be browsed.
	if editable {
		if err := s.savePage(ctx, from); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != from {
		return nil
	}
	if err := s.store.SetPage(ctx, s.key, from+1); err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	s.page = from + 1

	if from == 0 && !s.promoted && editable {
		s.promoted = true
		if err := s.store.MarkPromoted(ctx, s.key); err != nil {
			s.log.Warn().Err(err).Msg("Failed to persist promotion flag")
		}
		s.promoteEngagement(ctx)
	}
	return nil
}

// promoteEngagement marks the engagement active in the background. Failures
// are logged and never block navigation.
func (s *SurveySession) promoteEngagement(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.backend.UpdateEngagementStatus(ctx, s.key.EngagementID, model.EngagementActive); err != nil {
			s.log.Warn().Err(err).Msg("Failed to promote engagement to active")
			return
		}
		s.log.Info().Msg("Engagement promoted to active")
	}()
}

// Previous moves back one page without saving.
func (s *SurveySession) Previous(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.page == 0 {
		return ErrFirstPage
	}
	if err := s.store.SetPage(ctx, s.key, s.page-1); err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	s.page--
	return nil
}

// ─── Submission ─────────────────────────────────────────────────────

// Submit persists every merged answer, hands the diagnostic to the backend
// for processing and starts watching for completion. It is only allowed from
// the last page. On failure the session stays on the last page and the call
// may be retried.
func (s *SurveySession) Submit(ctx context.Context, completedBy string) error {
	_, err, _ := s.flight.Do("submit", func() (any, error) {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return nil, s.submit(ctx, completedBy)
	})
	return err
}

func (s *SurveySession) submit(ctx context.Context, completedBy string) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.page != s.schema.PageCount()-1 {
		s.mu.Unlock()
		return ErrNotLastPage
	}
	merged := s.mergedLocked()
	diagnosticID := s.diagnostic.ID
	s.state = model.SessionSubmitting
	s.mu.Unlock()

	if _, err := s.backend.PatchResponses(ctx, diagnosticID, merged, model.DiagnosticInProgress); err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	submitted, err := s.backend.Submit(ctx, diagnosticID, completedBy)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	s.mu.Lock()
	if submitted == nil {
		submitted = s.diagnostic
	}
	if submitted.Responses == nil {
		submitted.Responses = merged
	}
	if submitted.Status.Editable() {
		submitted.Status = model.DiagnosticProcessing
	}
	s.diagnostic = submitted
	if err := s.store.ClearAll(ctx, s.key); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear edits after submit")
	}
	s.edits = make(map[string]any)
	s.state = model.SessionSubmitted
	s.lastErr = nil
	s.mu.Unlock()

	job := model.DiagnosticJob{
		ID:           diagnosticID,
		EngagementID: s.key.EngagementID,
		UserID:       s.key.UserID,
		Timestamp:    s.now(),
	}
	if err := s.jobs.Register(ctx, job); err != nil {
		s.log.Error().Err(err).Str("diagnostic_id", diagnosticID).Msg("Failed to register diagnostic job")
	}
	if s.watcher != nil {
		s.watcher.Watch(job)
	}

	s.log.Info().Str("diagnostic_id", diagnosticID).Msg("Diagnostic submitted for processing")
	return nil
}

// ─── Snapshot ───────────────────────────────────────────────────────

// Progress is (page+1)/totalPages.
func (s *SurveySession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *SurveySession) progressLocked() float64 {
	total := s.schema.PageCount()
	if total == 0 {
		return 0
	}
	return float64(s.page+1) / float64(total)
}

// State returns the current session state.
func (s *SurveySession) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the session for rendering.
func (s *SurveySession) View() model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.schema.PageCount()
	view := model.SessionView{
		EngagementID:  s.key.EngagementID,
		State:         s.state,
		PageIndex:     s.page,
		TotalPages:    total,
		Progress:      s.progressLocked(),
		IsFirstPage:   s.page == 0,
		IsLastPage:    s.page == total-1,
		Elements:      []model.VisibleElement{},
		UnsavedFields: make([]string, 0, len(s.edits)),
	}
	if s.lastErr != nil {
		view.LastError = s.lastErr.Error()
	}
	for field := range s.edits {
		view.UnsavedFields = append(view.UnsavedFields, field)
	}
	sort.Strings(view.UnsavedFields)

	if s.diagnostic == nil {
		return view
	}
	view.DiagnosticID = s.diagnostic.ID
	view.DiagnosticStatus = s.diagnostic.Status

	if page, ok := s.schema.Page(s.page); ok {
		view.PageTitle = page.Title
	}
	merged := s.mergedLocked()
	for _, el := range s.schema.VisibleElements(s.page, merged) {
		view.Elements = append(view.Elements, model.VisibleElement{Element: el, Answer: merged[el.Name]})
	}
	return view
}

// ─── Helpers ────────────────────────────────────────────────────────

func (s *SurveySession) usableLocked() error {
	switch s.state {
	case model.SessionNotFound:
		return ErrDiagnosticNotFound
	case model.SessionUninitialized, model.SessionLoading:
		return ErrSessionNotLoaded
	}
	if s.diagnostic == nil {
		return ErrSessionNotLoaded
	}
	return nil
}

func (s *SurveySession) editableLocked() error {
	if err := s.usableLocked(); err != nil {
		return err
	}
	switch s.state {
	case model.SessionSubmitting, model.SessionSubmitted:
		return ErrDiagnosticLocked
	}
	if !s.diagnostic.Status.Editable() {
		return ErrDiagnosticLocked
	}
	return nil
}

func (s *SurveySession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(err)
}

func (s *SurveySession) failLocked(err error) {
	s.state = model.SessionFailed
	s.lastErr = err
}

func clampPage(page, total int) int {
	if page < 0 || total == 0 {
		return 0
	}
	if page >= total {
		return total - 1
	}
	return page
}
