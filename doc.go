// Package fiberjobs provides a fiber-based job scheduler for Go.
//
// A fixed set of worker threads hosts a fixed pool of fibers. Jobs are small
// functions submitted in batches; a job that depends on other jobs waits on a
// Counter, which parks its fiber and lets the worker run something else
// instead of blocking it.
//
// # Quick Start
//
// Create a scheduler, submit a root job and wait for shutdown:
//
//	s := fiberjobs.CreateScheduler(4, 64, 64*1024) // 4 workers, 64 fibers
//	defer s.Destroy()
//
//	s.RunJobs(context.Background(), "Root", []fiberjobs.JobDecl{{
//		EntryPoint: func(ctx context.Context, _ any) {
//			var counter fiberjobs.Counter
//			s.RunJobs(ctx, "Children", children, &counter)
//			s.WaitForCounter(ctx, &counter, 0) // parks this fiber
//			s.Quit()
//		},
//	}}, nil)
//	s.WaitForCompletion()
//
// # Key Concepts
//
// Job: an entry point plus data. Jobs of one batch run in no particular order,
// possibly in parallel, and always to completion on the fiber that started them.
//
// Counter: set to the batch size by RunJobs and decremented as each job finishes.
// WaitForCounter suspends the calling job until the counter reaches a target.
// Only one job may wait on a given counter at a time.
//
// Fiber: a goroutine that executes only while it holds one of the worker
// tokens, so at most WorkerCount fibers run at once. Parked fibers cost no
// worker. Fibers whose wait finished are resumed before new jobs start.
//
// # Failure model
//
// Calling WaitForCounter outside a job, waiting twice on one counter, or
// waiting for a value the counter already passed panics. A panic inside a job
// is reported to the PanicHandler and then terminates the process.
//
// For more details, see https://github.com/Swind/go-fiber-jobs
package fiberjobs
