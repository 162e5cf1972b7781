package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "service-token", 5*time.Second, zerolog.Nop())
}

func TestClient_ForwardsCallerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(model.Diagnostic{ID: "d1", Status: model.DiagnosticDraft})
	})

	ctx := WithToken(context.Background(), "user-token")
	if _, err := c.GetDiagnostic(ctx, "d1"); err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("Authorization: got %q, want caller token", gotAuth)
	}

	if _, err := c.GetDiagnostic(context.Background(), "d1"); err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if gotAuth != "Bearer service-token" {
		t.Errorf("Authorization: got %q, want service token", gotAuth)
	}
}

func TestClient_ForwardsRequestID(t *testing.T) {
	var gotID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		_ = json.NewEncoder(w).Encode(model.Diagnostic{ID: "d1"})
	})

	ctx := WithRequestID(context.Background(), "req-123")
	if _, err := c.GetDiagnostic(ctx, "d1"); err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if gotID != "req-123" {
		t.Errorf("X-Request-ID: got %q, want %q", gotID, "req-123")
	}

	if _, err := c.GetDiagnostic(context.Background(), "d1"); err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if gotID != "" {
		t.Errorf("X-Request-ID without id: got %q, want empty", gotID)
	}
}

func TestClient_NoTokenIsUnauthorized(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	if _, err := c.GetStatus(context.Background(), "d1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if called {
		t.Error("request should not be sent without a token")
	}
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusBadGateway, ErrUnavailable},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.GetDiagnosticForEngagement(context.Background(), "e1")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestClient_PatchResponses(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody model.PatchDiagnosticRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(model.Diagnostic{
			ID:        "d1",
			Status:    gotBody.Status,
			Responses: gotBody.Responses,
		})
	})

	d, err := c.PatchResponses(context.Background(), "d1", map[string]any{"a": "x"}, model.DiagnosticInProgress)
	if err != nil {
		t.Fatalf("PatchResponses: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/diagnostics/d1" {
		t.Errorf("request: got %s %s", gotMethod, gotPath)
	}
	if gotBody.Status != model.DiagnosticInProgress || gotBody.Responses["a"] != "x" {
		t.Errorf("body: got %+v", gotBody)
	}
	if d.Responses["a"] != "x" {
		t.Errorf("returned responses: got %v", d.Responses)
	}
}

func TestClient_SubmitAndPromote(t *testing.T) {
	var paths []string
	var completedBy string
	var engagementStatus model.EngagementStatus
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/diagnostics/d1/submit":
			var req model.SubmitDiagnosticRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			completedBy = req.CompletedBy
			_ = json.NewEncoder(w).Encode(model.Diagnostic{ID: "d1", Status: model.DiagnosticProcessing})
		case "/engagements/e1":
			var req model.UpdateEngagementStatusRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			engagementStatus = req.Status
			w.WriteHeader(http.StatusNoContent)
		}
	})

	d, err := c.Submit(context.Background(), "d1", "u1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Status != model.DiagnosticProcessing || completedBy != "u1" {
		t.Errorf("submit: status %s completed_by %q", d.Status, completedBy)
	}

	if err := c.UpdateEngagementStatus(context.Background(), "e1", model.EngagementActive); err != nil {
		t.Fatalf("UpdateEngagementStatus: %v", err)
	}
	if engagementStatus != model.EngagementActive {
		t.Errorf("engagement status: got %s", engagementStatus)
	}
	if len(paths) != 2 || paths[0] != "POST /diagnostics/d1/submit" || paths[1] != "PATCH /engagements/e1" {
		t.Errorf("paths: got %v", paths)
	}
}

func TestClient_DownloadReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/diagnostics/named/report" {
			w.Header().Set("Content-Disposition", `attachment; filename="acme-diagnostic.pdf"`)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})

	named, err := c.DownloadReport(context.Background(), "named")
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if named.Filename != "acme-diagnostic.pdf" {
		t.Errorf("Filename: got %q", named.Filename)
	}
	if string(named.Body) != "%PDF-1.7" {
		t.Errorf("Body: got %q", named.Body)
	}

	plain, err := c.DownloadReport(context.Background(), "d9")
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if plain.Filename != "diagnostic-report-d9.pdf" {
		t.Errorf("fallback Filename: got %q", plain.Filename)
	}
}

func TestReportFilename(t *testing.T) {
	cases := map[string]string{
		"":                               "diagnostic-report-x.pdf",
		"inline":                         "diagnostic-report-x.pdf",
		`attachment; filename=r.pdf`:     "r.pdf",
		`attachment; filename="a b.pdf"`: "a b.pdf",
		`attachment; filename=`:          "diagnostic-report-x.pdf",
	}
	for header, want := range cases {
		if got := ReportFilename(header, "x"); got != want {
			t.Errorf("ReportFilename(%q) = %q, want %q", header, got, want)
		}
	}
}
