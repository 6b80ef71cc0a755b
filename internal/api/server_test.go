package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wesm/wahistory/internal/config"
	"github.com/wesm/wahistory/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockScheduler implements ImportScheduler for tests.
type mockScheduler struct {
	running  bool
	statuses []WatchStatus
	started  []string
	triggers int
}

func (m *mockScheduler) TriggerAll() []string {
	m.triggers++
	return m.started
}

func (m *mockScheduler) Status() []WatchStatus { return m.statuses }
func (m *mockScheduler) IsRunning() bool       { return m.running }

// newTestServer builds a server over a fresh store. Zero deps fields are
// left unset.
func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Server: config.ServerConfig{APIPort: 8080}}
	}
	if deps.Store == nil {
		deps.Store = testutil.NewTestStore(t)
	}
	srv := NewServer(cfg, deps, testLogger())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, Deps{})
	w := do(t, srv, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{APIPort: 8080, APIKey: "secret-key"}}
	srv := newTestServer(t, cfg, Deps{})

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", map[string]string{"X-API-Key": "secret-key"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer secret-key"}, http.StatusOK},
		{"raw authorization", map[string]string{"Authorization": "secret-key"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "GET", "/api/v1/stats", tt.header)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	// Health stays open.
	if w := do(t, srv, "GET", "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health with auth status = %d", w.Code)
	}
	// Media is behind the key too.
	if w := do(t, srv, "GET", "/api/media/c/x.jpg", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("media without key status = %d", w.Code)
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	srv := newTestServer(t, nil, Deps{})
	if w := do(t, srv, "GET", "/api/v1/stats", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	sched := &mockScheduler{
		running:  true,
		statuses: []WatchStatus{{Dir: "/data/raw", Schedule: "0 2 * * *", LastImported: 4}},
	}
	srv := newTestServer(t, nil, Deps{Scheduler: sched})

	w := do(t, srv, "GET", "/api/v1/scheduler/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SchedulerStatusResponse](t, w)
	if !resp.Running || len(resp.Watches) != 1 || resp.Watches[0].LastImported != 4 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSchedulerStatusWithoutScheduler(t *testing.T) {
	srv := newTestServer(t, nil, Deps{})
	w := do(t, srv, "GET", "/api/v1/scheduler/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SchedulerStatusResponse](t, w)
	if resp.Running || resp.Watches == nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{BindAddr: "0.0.0.0", APIPort: 0}}
	srv := newTestServer(t, cfg, Deps{})
	if err := srv.Start(); err == nil {
		t.Fatal("Start on a public address without a key should fail")
	}
}

func TestCORSFromConfig(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			APIPort:     8080,
			CORSOrigins: []string{"http://localhost:3000", "http://example.com"},
		},
	}
	srv := newTestServer(t, cfg, Deps{})

	for origin, want := range map[string]string{
		"http://localhost:3000": "http://localhost:3000",
		"http://example.com":    "http://example.com",
		"http://evil.com":       "",
	} {
		w := do(t, srv, "GET", "/health", map[string]string{"Origin": origin})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", origin, got, want)
		}
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, nil, Deps{})
	w := do(t, srv, "GET", "/health", map[string]string{"Origin": "http://localhost:3000"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header when no origins configured, got %q", got)
	}
}

func TestRateLimitFromConfig(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{APIPort: 8080, RateLimit: 1}}
	srv := newTestServer(t, cfg, Deps{})

	// Burst is twice the rate.
	for i := range 2 {
		if w := do(t, srv, "GET", "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(t, srv, "GET", "/health", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error != "rate_limit_exceeded" {
		t.Errorf("error = %+v", resp)
	}
}
