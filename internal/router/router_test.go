package router

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/handler"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/service"
	"github.com/stemsi/diagnostic-gateway/internal/survey"
)

type testServer struct {
	router    *gin.Engine
	auth      *service.AuthService
	forwarded atomic.Value
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.forwarded.Store(r.Header.Get("Authorization"))
		http.NotFound(w, r)
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		JWTSecret:          "router-secret",
		RateLimitPerMinute: 100,
	}
	log := zerolog.Nop()

	schema, err := survey.Load("", log)
	if err != nil {
		t.Fatalf("survey.Load: %v", err)
	}
	client := backend.NewClient(upstream.URL, "service-token", 5*time.Second, log)
	jobs := repository.NewMemoryJobRegistry(time.Hour)
	surveys := service.NewSurveyService(schema, client, repository.NewMemoryEditsStore(), jobs, nil, log)
	engagements := service.NewEngagementService(client, repository.NewMemorySummaryCache(time.Hour), jobs, log)

	ts.auth = service.NewAuthService(cfg)
	ts.router = SetupRouter(ts.auth, &Handlers{
		Survey:       handler.NewSurveyHandler(surveys),
		Engagement:   handler.NewEngagementHandler(engagements, log),
		Notification: handler.NewNotificationHandler(nil, log, nil),
		System:       handler.NewSystemHandler(nil, surveys.ActiveSessions, nil, log),
	}, cfg, log)
	return ts
}

func (ts *testServer) token(t *testing.T, role model.Role) string {
	t.Helper()
	tok, err := ts.auth.GenerateToken("u1", role, "f1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (ts *testServer) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	ts := newTestServer(t)
	client := ts.token(t, model.RoleClient)
	advisor := ts.token(t, model.RoleAdvisor)

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"schema needs a token", "/api/v1/survey/schema", "", http.StatusUnauthorized},
		{"schema", "/api/v1/survey/schema", client, http.StatusOK},
		{"report is advisor only", "/api/v1/diagnostics/d1/report", client, http.StatusForbidden},
		{"report for advisor", "/api/v1/diagnostics/d1/report", advisor, http.StatusNotFound},
		{"survey without diagnostic", "/api/v1/engagements/e1/survey", client, http.StatusNotFound},
		{"metrics need an admin", "/api/v1/system/metrics", advisor, http.StatusForbidden},
		{"ws needs a query token", "/ws/v1/notifications", client, http.StatusUnauthorized},
		{"unknown route", "/api/v1/exams", client, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ts.get(tc.path, tc.token).Code; got != tc.status {
				t.Errorf("GET %s: got %d, want %d", tc.path, got, tc.status)
			}
		})
	}
}

func TestRouter_HeadersAndForwarding(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, model.RoleClient)

	w := ts.get("/api/v1/survey/schema", tok)
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=300" {
		t.Errorf("schema Cache-Control: got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	w = ts.get("/api/v1/engagements/e1/survey", tok)
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("survey Cache-Control: got %q", got)
	}
	if got, _ := ts.forwarded.Load().(string); got != "Bearer "+tok {
		t.Errorf("forwarded Authorization: got %q, want caller token", got)
	}
}

func TestRouter_RequestID(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("echoed id: got %q, want %q", got, "trace-42")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got == "" || got == "bad id\nwith newline" {
		t.Errorf("unsafe id should be replaced, got %q", got)
	}
}
