package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/metrics"
	"github.com/ranikadev/baas-bot/internal/middleware"
	"github.com/ranikadev/baas-bot/internal/scheduler"
	"github.com/ranikadev/baas-bot/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type stubPosting struct {
	service.PostingService
	calls int
}

func (s *stubPosting) TriggerNow(ctx context.Context, userID int64) (service.CycleResult, error) {
	s.calls++
	return service.CycleResult{RunID: "run-1", UserID: userID, Outcome: service.CyclePublished}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type stubScheduler struct {
	state scheduler.State
	next  time.Time
}

func (s stubScheduler) State() scheduler.State { return s.state }
func (s stubScheduler) Next() time.Time        { return s.next }

func testConfig() *config.Config {
	return &config.Config{
		Environment:          "test",
		TriggerRateLimit:     1,
		TriggerRateWindowSec: 3600,
	}
}

func TestHealth(t *testing.T) {
	next := time.Date(2025, 1, 1, 3, 30, 0, 0, time.UTC)
	h := New(testConfig(), Deps{
		Posting:   &stubPosting{},
		DB:        stubPinger{},
		Scheduler: stubScheduler{state: scheduler.StateRunning, next: next},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Database != "ok" || body.Scheduler != "running" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.NextRun == nil || !body.NextRun.Equal(next) {
		t.Fatalf("next_run = %v, want %v", body.NextRun, next)
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	h := New(testConfig(), Deps{DB: stubPinger{err: errors.New("refused")}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveFetch(true)

	h := New(testConfig(), Deps{Registry: reg}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "baasbot_") {
		t.Fatalf("metrics output missing baasbot collectors")
	}
}

func TestSwaggerDoc(t *testing.T) {
	h := New(testConfig(), Deps{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	raw, _ := io.ReadAll(rec.Body)
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("doc is not JSON: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/users/{id}/trigger"]; !ok {
		t.Fatalf("trigger route missing from doc")
	}
}

func TestTriggerRateLimitedPerUser(t *testing.T) {
	posting := &stubPosting{}
	limiter := middleware.NewMemoryRateLimiter()
	defer limiter.Close()

	h := New(testConfig(), Deps{Posting: posting, Limiter: limiter}, zerolog.Nop())

	do := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec.Code
	}

	if code := do("/v1/users/1/trigger"); code != http.StatusOK {
		t.Fatalf("first trigger status = %d, want 200", code)
	}
	if code := do("/v1/users/1/trigger"); code != http.StatusTooManyRequests {
		t.Fatalf("second trigger status = %d, want 429", code)
	}
	if code := do("/v1/users/2/trigger"); code != http.StatusOK {
		t.Fatalf("other user status = %d, want 200", code)
	}
	if posting.calls != 2 {
		t.Fatalf("TriggerNow calls = %d, want 2", posting.calls)
	}
}

func TestBillingRoutesOnlyWhenEnabled(t *testing.T) {
	h := New(testConfig(), Deps{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", strings.NewReader("{}")))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 with billing disabled", rec.Code)
	}
}

func TestRootPathsRedirectToV1(t *testing.T) {
	h := New(testConfig(), Deps{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/1", nil))
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/users/1" {
		t.Fatalf("Location = %q", loc)
	}
}
