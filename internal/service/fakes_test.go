package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/survey"
)

var errBackendDown = errors.New("backend down")

type patchCall struct {
	ID        string
	Responses map[string]any
	Status    model.DiagnosticStatus
}

// fakeBackend is an in-memory stand-in for the advisory backend.
type fakeBackend struct {
	mu sync.Mutex

	diagnostic *model.Diagnostic
	summary    *model.EngagementSummary

	patches     []patchCall
	submits     []string
	promotions  []string
	summaryHits int

	failPatch   error
	failSubmit  error
	failPromote error

	// patchEntered receives once a patch call has started; patchGate holds
	// patch calls until it is closed.
	patchEntered chan struct{}
	patchGate    chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		diagnostic: &model.Diagnostic{
			ID:           "d1",
			EngagementID: "e1",
			Status:       model.DiagnosticDraft,
			Responses:    map[string]any{},
		},
	}
}

func (f *fakeBackend) GetDiagnosticForEngagement(_ context.Context, engagementID string) (*model.Diagnostic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diagnostic == nil || f.diagnostic.EngagementID != engagementID {
		return nil, backend.ErrNotFound
	}
	return cloneDiagnostic(f.diagnostic), nil
}

func (f *fakeBackend) PatchResponses(_ context.Context, id string, responses map[string]any, status model.DiagnosticStatus) (*model.Diagnostic, error) {
	if f.patchEntered != nil {
		select {
		case f.patchEntered <- struct{}{}:
		default:
		}
	}
	if f.patchGate != nil {
		<-f.patchGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sent := make(map[string]any, len(responses))
	for k, v := range responses {
		sent[k] = v
	}
	f.patches = append(f.patches, patchCall{ID: id, Responses: sent, Status: status})
	if f.failPatch != nil {
		return nil, f.failPatch
	}
	for k, v := range responses {
		f.diagnostic.Responses[k] = v
	}
	f.diagnostic.Status = status
	return cloneDiagnostic(f.diagnostic), nil
}

func (f *fakeBackend) Submit(_ context.Context, id, completedBy string) (*model.Diagnostic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, completedBy)
	if f.failSubmit != nil {
		return nil, f.failSubmit
	}
	f.diagnostic.Status = model.DiagnosticProcessing
	f.diagnostic.CompletedBy = completedBy
	return cloneDiagnostic(f.diagnostic), nil
}

func (f *fakeBackend) UpdateEngagementStatus(_ context.Context, engagementID string, status model.EngagementStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotions = append(f.promotions, engagementID+":"+string(status))
	return f.failPromote
}

func (f *fakeBackend) GetEngagementSummary(_ context.Context, engagementID string) (*model.EngagementSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryHits++
	if f.summary == nil {
		return nil, backend.ErrNotFound
	}
	s := *f.summary
	return &s, nil
}

func (f *fakeBackend) DownloadReport(_ context.Context, diagnosticID string) (*model.Report, error) {
	return &model.Report{Filename: "diagnostic-report-" + diagnosticID + ".pdf", Body: []byte("%PDF")}, nil
}

func (f *fakeBackend) patchCalls() []patchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]patchCall, len(f.patches))
	copy(out, f.patches)
	return out
}

func (f *fakeBackend) promotionCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.promotions))
	copy(out, f.promotions)
	return out
}

func cloneDiagnostic(d *model.Diagnostic) *model.Diagnostic {
	c := *d
	c.Responses = make(map[string]any, len(d.Responses))
	for k, v := range d.Responses {
		c.Responses[k] = v
	}
	return &c
}

type recordingWatcher struct {
	mu      sync.Mutex
	watched []model.DiagnosticJob
}

func (w *recordingWatcher) Watch(job model.DiagnosticJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, job)
}

// testDoc has two pages: a boolean "a" on the first, and "b" shown only when
// a is Yes on the second.
func testDoc() model.SurveyDocument {
	return model.SurveyDocument{
		Title: "Test",
		Pages: []model.Page{
			{Title: "First", Elements: []model.Element{
				{Name: "a", Type: model.ElementBoolean},
				{Name: "note", Type: model.ElementText},
			}},
			{Title: "Second", Elements: []model.Element{
				{Name: "b", Type: model.ElementText, VisibleIf: "{a} == 'Yes'"},
				{Name: "c", Type: model.ElementComment},
			}},
		},
	}
}

type harness struct {
	backend *fakeBackend
	store   *repository.MemoryEditsStore
	jobs    *repository.MemoryJobRegistry
	watcher *recordingWatcher
	session *SurveySession
	key     repository.SessionKey
}

// threePageDoc has one text question per page.
func threePageDoc() model.SurveyDocument {
	doc := model.SurveyDocument{Title: "Three"}
	for i, name := range []string{"p0", "p1", "p2"} {
		doc.Pages = append(doc.Pages, model.Page{
			Title:    "P" + string(rune('0'+i)),
			Elements: []model.Element{{Name: name, Type: model.ElementText}},
		})
	}
	return doc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDoc(t, testDoc())
}

func newHarnessWithDoc(t *testing.T, doc model.SurveyDocument) *harness {
	t.Helper()
	schema, err := survey.New(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("survey.New: %v", err)
	}
	h := &harness{
		backend: newFakeBackend(),
		store:   repository.NewMemoryEditsStore(),
		jobs:    repository.NewMemoryJobRegistry(30 * time.Minute),
		watcher: &recordingWatcher{},
		key:     repository.SessionKey{UserID: "u1", EngagementID: "e1"},
	}
	h.session = NewSurveySession(h.key, schema, h.backend, h.store, h.jobs, h.watcher, zerolog.Nop())
	return h
}
