package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling job panics
// =============================================================================

// PanicHandler is called when a job panics during execution.
//
// A job panic is fatal: once the handler returns the panic is re-raised on
// the fiber goroutine and terminates the process. The handler is the last
// chance to report it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a job panics.
	//
	// Parameters:
	// - ctx: The job context of the panicked job
	// - jobName: The batch name of the job
	// - workerID: The worker the job was running on
	// - panicInfo: The panic value recovered from the job
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, jobName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, jobName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s", workerID, jobName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Queue names reported through Metrics.RecordQueueDepth.
const (
	QueueJobs  = "jobs"
	QueueReady = "ready"
	QueueFree  = "free"
)

// Fiber switch reasons reported through Metrics.RecordFiberSwitch.
const (
	SwitchPark   = "park"
	SwitchResume = "resume"
)

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from worker goroutines in the middle of scheduling and
// must be non-blocking and fast.
type Metrics interface {
	// RecordJobDuration records how long a job took, excluding time spent parked.
	RecordJobDuration(jobName string, duration time.Duration)

	// RecordJobPanic records that a job panicked.
	RecordJobPanic(jobName string, panicInfo any)

	// RecordQueueDepth records the depth of one of the scheduler queues
	// (QueueJobs, QueueReady, QueueFree).
	RecordQueueDepth(queue string, depth int)

	// RecordBatchRejected records that a batch was refused (e.g., during shutdown).
	RecordBatchRejected(jobName string, reason string)

	// RecordFiberSwitch records a fiber switch (SwitchPark, SwitchResume).
	RecordFiberSwitch(reason string)

	// RecordWaitDuration records how long a job was parked in WaitForCounter.
	RecordWaitDuration(jobName string, duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordJobDuration(jobName string, duration time.Duration)  {}
func (m *NilMetrics) RecordJobPanic(jobName string, panicInfo any)              {}
func (m *NilMetrics) RecordQueueDepth(queue string, depth int)                  {}
func (m *NilMetrics) RecordBatchRejected(jobName string, reason string)         {}
func (m *NilMetrics) RecordFiberSwitch(reason string)                           {}
func (m *NilMetrics) RecordWaitDuration(jobName string, duration time.Duration) {}

// =============================================================================
// RejectedJobHandler: Interface for handling rejected batches
// =============================================================================

// RejectedJobHandler is called when RunJobs refuses a batch. This happens
// when a batch is submitted from outside any job after Quit.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedJobHandler interface {
	HandleRejectedBatch(jobName string, numJobs int, reason string)
}

// DefaultRejectedJobHandler logs rejected batches through a Logger.
type DefaultRejectedJobHandler struct {
	Logger Logger
}

// HandleRejectedBatch logs the rejected batch.
func (h *DefaultRejectedJobHandler) HandleRejectedBatch(jobName string, numJobs int, reason string) {
	logger := h.Logger
	if logger == nil {
		return
	}
	logger.Warn("batch rejected", F("batch", jobName), F("jobs", numJobs), F("reason", reason))
}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

const (
	defaultFiberCount      = 128
	defaultFiberStackSize  = 64 * 1024
	defaultIdleTimeout     = time.Millisecond
	defaultSpinLimit       = 64
	maxAllowedWorkers      = 10000
	maxAllowedFibers       = 1 << 20
	defaultHistoryCapacity = 100
)

// ErrInvalidConfig is returned when a SchedulerConfig cannot produce a working scheduler.
var ErrInvalidConfig = errors.New("invalid scheduler config")

// SchedulerConfig holds configuration options for Scheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// WorkerCount is the number of worker threads (N).
	WorkerCount int

	// FiberCount is the size of the fiber pool (M). It must exceed
	// WorkerCount, by at least the deepest chain of nested waits.
	FiberCount int

	// FiberStackSize is the nominal stack size per fiber in bytes. Fibers are
	// goroutines, so stacks grow on demand; the value is validated and reported.
	FiberStackSize int

	// IdleTimeout bounds how long an idle worker sleeps before re-checking the queues.
	IdleTimeout time.Duration

	// SpinLimit is the number of busy retries before a spin loop starts yielding.
	SpinLimit int

	// HistoryCapacity is the number of job execution records kept for RecentJobs.
	HistoryCapacity int

	// Logger receives lifecycle and error logs. Defaults to NoOpLogger.
	Logger Logger

	// PanicHandler is called when a job panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedJobHandler is called when a batch is rejected. Defaults to DefaultRejectedJobHandler.
	RejectedJobHandler RejectedJobHandler

	// Observer receives fiber enter/exit callbacks. Optional.
	Observer FiberObserver
}

// DefaultSchedulerConfig returns a config with one worker per CPU and default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	workers := runtime.NumCPU()
	return &SchedulerConfig{
		WorkerCount:     workers,
		FiberCount:      max(defaultFiberCount, workers*4),
		FiberStackSize:  defaultFiberStackSize,
		IdleTimeout:     defaultIdleTimeout,
		SpinLimit:       defaultSpinLimit,
		HistoryCapacity: defaultHistoryCapacity,
		Logger:          NewNoOpLogger(),
		PanicHandler:    &DefaultPanicHandler{},
		Metrics:         &NilMetrics{},
	}
}

// Validate reports whether the sizing fields describe a usable scheduler.
func (c *SchedulerConfig) Validate() error {
	if c.WorkerCount < 1 || c.WorkerCount > maxAllowedWorkers {
		return fmt.Errorf("%w: worker count %d not in [1, %d]", ErrInvalidConfig, c.WorkerCount, maxAllowedWorkers)
	}
	if c.FiberCount <= c.WorkerCount || c.FiberCount > maxAllowedFibers {
		return fmt.Errorf("%w: fiber count %d must be greater than worker count %d and at most %d",
			ErrInvalidConfig, c.FiberCount, c.WorkerCount, maxAllowedFibers)
	}
	if c.FiberStackSize <= 0 {
		return fmt.Errorf("%w: fiber stack size %d must be positive", ErrInvalidConfig, c.FiberStackSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout %v must not be negative", ErrInvalidConfig, c.IdleTimeout)
	}
	if c.SpinLimit < 0 {
		return fmt.Errorf("%w: spin limit %d must not be negative", ErrInvalidConfig, c.SpinLimit)
	}
	return nil
}

// withDefaults returns a copy of c with every unset optional field filled in.
func (c *SchedulerConfig) withDefaults() SchedulerConfig {
	out := *c
	if out.IdleTimeout == 0 {
		out.IdleTimeout = defaultIdleTimeout
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = defaultHistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedJobHandler == nil {
		out.RejectedJobHandler = &DefaultRejectedJobHandler{Logger: out.Logger}
	}
	return out
}
