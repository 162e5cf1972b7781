package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/survey"
)

// SurveyService keeps live survey sessions keyed by user and engagement.
type SurveyService struct {
	schema  *survey.Schema
	backend DiagnosticBackend
	store   repository.EditsStore
	jobs    repository.JobRegistry
	watcher JobWatcher
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[repository.SessionKey]*sessionEntry
}

type sessionEntry struct {
	session  *SurveySession
	lastUsed time.Time
}

// NewSurveyService creates a new SurveyService.
func NewSurveyService(
	schema *survey.Schema,
	backend DiagnosticBackend,
	store repository.EditsStore,
	jobs repository.JobRegistry,
	watcher JobWatcher,
	log zerolog.Logger,
) *SurveyService {
	return &SurveyService{
		schema:   schema,
		backend:  backend,
		store:    store,
		jobs:     jobs,
		watcher:  watcher,
		log:      log.With().Str("component", "survey_service").Logger(),
		now:      time.Now,
		sessions: make(map[repository.SessionKey]*sessionEntry),
	}
}

// Schema returns the loaded survey schema.
func (s *SurveyService) Schema() *survey.Schema {
	return s.schema
}

// Session returns the live session for key, loading it on first use.
func (s *SurveyService) Session(ctx context.Context, key repository.SessionKey) (*SurveySession, error) {
	sess := s.lookup(key)

	switch sess.State() {
	case model.SessionUninitialized, model.SessionLoading:
		if err := sess.Load(ctx); err != nil {
			return nil, err
		}
	case model.SessionNotFound:
		return nil, ErrDiagnosticNotFound
	case model.SessionFailed:
		// A failed first load leaves nothing to work with, so retry it.
		if sess.View().DiagnosticID == "" {
			if err := sess.Load(ctx); err != nil {
				return nil, err
			}
		}
	}
	return sess, nil
}

func (s *SurveyService) lookup(key repository.SessionKey) *SurveySession {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[key]
	if !ok {
		entry = &sessionEntry{
			session: NewSurveySession(key, s.schema, s.backend, s.store, s.jobs, s.watcher, s.log),
		}
		s.sessions[key] = entry
	}
	entry.lastUsed = s.now()
	return entry.session
}

// Open loads or reloads the session for key from the backend and returns its
// view.
func (s *SurveyService) Open(ctx context.Context, key repository.SessionKey) (model.SessionView, error) {
	sess := s.lookup(key)
	if err := sess.Load(ctx); err != nil {
		return model.SessionView{}, err
	}
	return sess.View(), nil
}

// RecordAnswer stores one local edit.
func (s *SurveyService) RecordAnswer(ctx context.Context, key repository.SessionKey, field string, value any) (model.SessionView, error) {
	return s.apply(ctx, key, func(sess *SurveySession) error {
		return sess.RecordAnswer(ctx, field, value)
	})
}

// SavePage saves the current page.
func (s *SurveyService) SavePage(ctx context.Context, key repository.SessionKey) (model.SessionView, error) {
	return s.apply(ctx, key, func(sess *SurveySession) error {
		return sess.SaveCurrentPage(ctx)
	})
}

// Next saves and advances one page.
func (s *SurveyService) Next(ctx context.Context, key repository.SessionKey) (model.SessionView, error) {
	return s.apply(ctx, key, func(sess *SurveySession) error {
		return sess.Next(ctx)
	})
}

// Previous moves back one page.
func (s *SurveyService) Previous(ctx context.Context, key repository.SessionKey) (model.SessionView, error) {
	return s.apply(ctx, key, func(sess *SurveySession) error {
		return sess.Previous(ctx)
	})
}

// Submit hands the diagnostic off for processing.
func (s *SurveyService) Submit(ctx context.Context, key repository.SessionKey) (model.SessionView, error) {
	return s.apply(ctx, key, func(sess *SurveySession) error {
		return sess.Submit(ctx, key.UserID)
	})
}

// apply runs op on the session and returns the resulting view. The view is
// returned even when op fails so callers can show unsaved state.
func (s *SurveyService) apply(ctx context.Context, key repository.SessionKey, op func(*SurveySession) error) (model.SessionView, error) {
	sess, err := s.Session(ctx, key)
	if err != nil {
		return model.SessionView{}, err
	}
	err = op(sess)
	return sess.View(), err
}

// PruneIdle drops sessions unused for longer than maxIdle. Unsaved edits stay
// in the edits store and are restored on the next load.
func (s *SurveyService) PruneIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	pruned := 0
	for key, entry := range s.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(s.sessions, key)
			pruned++
		}
	}
	return pruned
}

// ActiveSessions returns the number of live sessions.
func (s *SurveyService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
