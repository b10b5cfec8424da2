package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	queuedJobs    *prom.GaugeVec
	readyFibers   *prom.GaugeVec
	freeFibers    *prom.GaugeVec
	parkedFibers  *prom.GaugeVec
	inFlightJobs  *prom.GaugeVec
	completedJobs *prom.GaugeVec
	rejectedJobs  *prom.GaugeVec
	fiberSwitches *prom.GaugeVec
	workers       *prom.GaugeVec
	fibers        *prom.GaugeVec
	running       *prom.GaugeVec

	stateMu sync.Mutex
	polling bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSchedulerGauge(name, help string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberjobs",
		Subsystem: "scheduler",
		Name:      name,
		Help:      help,
	}, []string{"scheduler"})
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
	}

	gauges := []struct {
		dst  **prom.GaugeVec
		name string
		help string
	}{
		{&p.queuedJobs, "queued_jobs", "Jobs waiting in the job queue."},
		{&p.readyFibers, "ready_fibers", "Fibers whose wait is satisfied and that wait for a worker."},
		{&p.freeFibers, "free_fibers", "Fibers in the free pool."},
		{&p.parkedFibers, "parked_fibers", "Fibers parked on a counter."},
		{&p.inFlightJobs, "in_flight_jobs", "Accepted jobs that have not finished."},
		{&p.completedJobs, "completed_jobs", "Completed job count snapshot."},
		{&p.rejectedJobs, "rejected_jobs", "Rejected job count snapshot."},
		{&p.fiberSwitches, "fiber_switches", "Fiber switch count snapshot."},
		{&p.workers, "workers", "Worker thread count."},
		{&p.fibers, "fibers", "Fiber pool size."},
		{&p.running, "running", "Scheduler running state (1=running, 0=stopped)."},
	}
	for _, g := range gauges {
		vec, err := registerCollector(reg, newSchedulerGauge(g.name, g.help))
		if err != nil {
			return nil, err
		}
		*g.dst = vec
	}

	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.polling {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.polling = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.polling {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.polling = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

// CollectOnce exports one snapshot of every registered scheduler.
func (p *SnapshotPoller) CollectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.queuedJobs.WithLabelValues(name).Set(float64(stats.QueuedJobs))
		p.readyFibers.WithLabelValues(name).Set(float64(stats.ReadyFibers))
		p.freeFibers.WithLabelValues(name).Set(float64(stats.FreeFibers))
		p.parkedFibers.WithLabelValues(name).Set(float64(stats.ParkedFibers))
		p.inFlightJobs.WithLabelValues(name).Set(float64(stats.InFlightJobs))
		p.completedJobs.WithLabelValues(name).Set(float64(stats.CompletedJobs))
		p.rejectedJobs.WithLabelValues(name).Set(float64(stats.RejectedJobs))
		p.fiberSwitches.WithLabelValues(name).Set(float64(stats.FiberSwitches))
		p.workers.WithLabelValues(name).Set(float64(stats.Workers))
		p.fibers.WithLabelValues(name).Set(float64(stats.Fibers))
		if stats.Running {
			p.running.WithLabelValues(name).Set(1)
		} else {
			p.running.WithLabelValues(name).Set(0)
		}
	}
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}
