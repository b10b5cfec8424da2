package core

import "time"

// JobExecutionRecord captures a completed job execution event.
type JobExecutionRecord struct {
	Name       string
	FiberID    FiberID
	WorkerID   int // worker the job finished on
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Waited     time.Duration // time spent parked in WaitForCounter
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	ID             string
	Workers        int
	Fibers         int
	FiberStackSize int

	QueuedJobs   int
	ReadyFibers  int
	FreeFibers   int
	ParkedFibers int

	InFlightJobs  int64
	CompletedJobs int64
	RejectedJobs  int64
	FiberSwitches int64
	FastPathWaits int64

	Quitting bool
	Running  bool

	LastJobName string
	LastJobAt   time.Time
}
