package fiberjobs

import "github.com/Swind/go-fiber-jobs/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fiberjobs package for most use cases.

// Scheduler runs jobs on fibers hosted by worker threads
type Scheduler = core.Scheduler

// SchedulerConfig holds sizing and handler options for a Scheduler
type SchedulerConfig = core.SchedulerConfig

// JobDecl is one unit of work: entry point plus data
type JobDecl = core.JobDecl

// JobEntryPoint is the function a job runs
type JobEntryPoint = core.JobEntryPoint

// Counter tracks outstanding jobs of a batch
type Counter = core.Counter

// FiberID identifies a fiber of a scheduler
type FiberID = core.FiberID

// SchedulerStats is a snapshot of scheduler state
type SchedulerStats = core.SchedulerStats

// JobExecutionRecord is one completed job
type JobExecutionRecord = core.JobExecutionRecord

// DefaultSchedulerConfig returns a config sized to the machine
var DefaultSchedulerConfig = core.DefaultSchedulerConfig

// Context helpers for code running inside a job
var (
	CurrentScheduler = core.CurrentScheduler
	CurrentFiberID   = core.CurrentFiberID
	CurrentJobName   = core.CurrentJobName
)
