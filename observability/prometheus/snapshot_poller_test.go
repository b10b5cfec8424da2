package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type schedulerStub struct {
	stats core.SchedulerStats
}

func (s schedulerStub) Stats() core.SchedulerStats { return s.stats }

func TestSnapshotPoller_CollectsSchedulerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddScheduler("engine", schedulerStub{stats: core.SchedulerStats{
		Workers:       4,
		Fibers:        64,
		QueuedJobs:    3,
		ReadyFibers:   1,
		FreeFibers:    50,
		ParkedFibers:  2,
		InFlightJobs:  9,
		CompletedJobs: 120,
		Running:       true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.queuedJobs.WithLabelValues("engine"))
		parked := testutil.ToFloat64(poller.parkedFibers.WithLabelValues("engine"))
		return queued == 3 && parked == 2
	})

	if got := testutil.ToFloat64(poller.running.WithLabelValues("engine")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.fibers.WithLabelValues("engine")); got != 64 {
		t.Fatalf("fibers gauge = %v, want 64", got)
	}
}

func TestSnapshotPoller_RealScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := core.DefaultSchedulerConfig()
	cfg.WorkerCount = 2
	cfg.FiberCount = 8
	s, err := core.NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	poller.AddScheduler("", s)

	s.Destroy()
	poller.CollectOnce()

	if got := testutil.ToFloat64(poller.running.WithLabelValues("scheduler")); got != 0 {
		t.Fatalf("running gauge after Destroy = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.workers.WithLabelValues("scheduler")); got != 2 {
		t.Fatalf("workers gauge = %v, want 2", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
