package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	"github.com/prometheus/client_golang/prometheus"
)

type stubScheduler struct {
	stats core.SchedulerStats
	jobs  []core.JobExecutionRecord
	limit int
}

func (s *stubScheduler) Stats() core.SchedulerStats { return s.stats }

func (s *stubScheduler) RecentJobs(limit int) []core.JobExecutionRecord {
	s.limit = limit
	return s.jobs
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Stats(t *testing.T) {
	stub := &stubScheduler{stats: core.SchedulerStats{ID: "abc", Workers: 4, Running: true}}
	srv := New(stub, prometheus.NewRegistry(), nil)

	rec := do(t, srv, "/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.ID != "abc" || body.Stats.Workers != 4 {
		t.Errorf("stats = %+v", body.Stats)
	}
}

func TestServer_Jobs(t *testing.T) {
	stub := &stubScheduler{jobs: []core.JobExecutionRecord{
		{Name: "Render World", Duration: time.Millisecond},
	}}
	srv := New(stub, prometheus.NewRegistry(), nil)

	rec := do(t, srv, "/jobs?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if stub.limit != 5 {
		t.Errorf("RecentJobs limit = %d, want 5", stub.limit)
	}
	var jobs []core.JobExecutionRecord
	if err := json.NewDecoder(rec.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "Render World" {
		t.Errorf("jobs = %+v", jobs)
	}

	if rec := do(t, srv, "/jobs?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestServer_JobsEmptyList(t *testing.T) {
	srv := New(&stubScheduler{}, prometheus.NewRegistry(), nil)

	rec := do(t, srv, "/jobs")

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestServer_Health(t *testing.T) {
	stub := &stubScheduler{stats: core.SchedulerStats{Running: true}}
	srv := New(stub, prometheus.NewRegistry(), nil)

	if rec := do(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("running status = %d, want 200", rec.Code)
	}
	stub.stats.Running = false
	if rec := do(t, srv, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped status = %d, want 503", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fiberjobs_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)
	srv := New(&stubScheduler{}, reg, nil)

	rec := do(t, srv, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fiberjobs_test_total 3") {
		t.Errorf("metrics output lacks the registered counter:\n%s", rec.Body.String())
	}
}
