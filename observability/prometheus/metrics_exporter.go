package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	WaitBuckets     []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	jobDurationSeconds  *prom.HistogramVec
	jobPanicTotal       *prom.CounterVec
	batchRejectedTotal  *prom.CounterVec
	queueDepth          *prom.GaugeVec
	fiberSwitchTotal    *prom.CounterVec
	waitDurationSeconds *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fiberjobs"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	waitBuckets := opts.WaitBuckets
	if len(waitBuckets) == 0 {
		waitBuckets = prom.ExponentialBuckets(0.00001, 4, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds, excluding time spent parked.",
		Buckets:   buckets,
	}, []string{"job"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panic_total",
		Help:      "Total number of job panics.",
	}, []string{"job"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_rejected_total",
		Help:      "Total number of rejected batches.",
	}, []string{"job", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Last observed scheduler queue depth.",
	}, []string{"queue"})
	switchVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fiber_switch_total",
		Help:      "Total number of fiber switches.",
	}, []string{"reason"})
	waitVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "wait_duration_seconds",
		Help:      "Time a job spent parked in WaitForCounter, in seconds.",
		Buckets:   waitBuckets,
	}, []string{"job"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if switchVec, err = registerCollector(reg, switchVec); err != nil {
		return nil, err
	}
	if waitVec, err = registerCollector(reg, waitVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds:  durationVec,
		jobPanicTotal:       panicVec,
		batchRejectedTotal:  rejectedVec,
		queueDepth:          queueDepthVec,
		fiberSwitchTotal:    switchVec,
		waitDurationSeconds: waitVec,
	}, nil
}

// RecordJobDuration records job execution duration.
func (m *MetricsExporter) RecordJobDuration(jobName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(normalizeLabel(jobName, "unknown")).Observe(duration.Seconds())
}

// RecordJobPanic records job panic events.
func (m *MetricsExporter) RecordJobPanic(jobName string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicTotal.WithLabelValues(normalizeLabel(jobName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queue, "unknown")).Set(float64(depth))
}

// RecordBatchRejected records batch rejection events.
func (m *MetricsExporter) RecordBatchRejected(jobName string, reason string) {
	if m == nil {
		return
	}
	m.batchRejectedTotal.WithLabelValues(normalizeLabel(jobName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordFiberSwitch records a fiber switch.
func (m *MetricsExporter) RecordFiberSwitch(reason string) {
	if m == nil {
		return
	}
	m.fiberSwitchTotal.WithLabelValues(normalizeLabel(reason, "unknown")).Inc()
}

// RecordWaitDuration records how long a job was parked.
func (m *MetricsExporter) RecordWaitDuration(jobName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.waitDurationSeconds.WithLabelValues(normalizeLabel(jobName, "unknown")).Observe(duration.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
