package core

import (
	"context"
	"sync/atomic"
	"time"
)

// JobEntryPoint is the function a job runs on a fiber.
//
// ctx identifies the fiber executing the job. It must be passed unchanged to
// WaitForCounter and RunJobs calls made from the job.
type JobEntryPoint func(ctx context.Context, data any)

// JobDecl describes one unit of work: an entry point and its argument.
type JobDecl struct {
	EntryPoint JobEntryPoint
	Data       any
}

// jobData is a JobDecl as it sits in the job queue, tagged with its batch.
type jobData struct {
	decl    JobDecl
	counter *Counter
	name    string
}

// readyFiber is a parked fiber whose wait has been satisfied.
type readyFiber struct {
	fiberID FiberID
	jobName string
}

// waitingFiber is a wait registry entry: the single fiber parked on a counter.
type waitingFiber struct {
	fiberID FiberID
	target  uint32
	jobName string

	// canBeMadeReady is set by the fiber that runs next on the parked fiber's
	// worker, once the switch away from the parked fiber has completed. The
	// fiber must not be put on the ready queue before that.
	canBeMadeReady atomic.Bool
}

// =============================================================================
// Context Helper
// =============================================================================

// jobFrame identifies one execution of a job on a fiber. It is what the job
// context carries.
type jobFrame struct {
	fiber  *fiber
	name   string
	waited time.Duration // written by the job's own fiber only
	done   atomic.Bool
}

type jobFrameKeyType struct{}

var jobFrameKey jobFrameKeyType

func withJobFrame(ctx context.Context, frame *jobFrame) context.Context {
	return context.WithValue(ctx, jobFrameKey, frame)
}

// activeJobFrame returns the frame of a job that is still executing, or nil.
func activeJobFrame(ctx context.Context) *jobFrame {
	if ctx == nil {
		return nil
	}
	frame, ok := ctx.Value(jobFrameKey).(*jobFrame)
	if !ok || frame.done.Load() {
		return nil
	}
	return frame
}

// CurrentScheduler returns the scheduler running the job that owns ctx, or
// nil when ctx does not come from a running job.
func CurrentScheduler(ctx context.Context) *Scheduler {
	if frame := activeJobFrame(ctx); frame != nil {
		return frame.fiber.scheduler
	}
	return nil
}

// CurrentFiberID returns the fiber that runs the job owning ctx.
func CurrentFiberID(ctx context.Context) (FiberID, bool) {
	if frame := activeJobFrame(ctx); frame != nil {
		return frame.fiber.id, true
	}
	return InvalidFiberID, false
}

// CurrentJobName returns the batch name of the job owning ctx.
func CurrentJobName(ctx context.Context) string {
	if frame := activeJobFrame(ctx); frame != nil {
		return frame.name
	}
	return ""
}
