package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs jobs on a fixed pool of fibers hosted by a fixed set of
// worker threads.
//
// Jobs run to completion on the fiber that dequeued them. The only
// suspension point is WaitForCounter, which parks the calling fiber and lets
// its worker pick up other work. Fibers whose wait is satisfied are resumed
// before any new job is started.
//
// All state is owned by the instance; independent schedulers do not share
// anything.
type Scheduler struct {
	id     string
	config SchedulerConfig

	logger             Logger
	metrics            Metrics
	panicHandler       PanicHandler
	rejectedJobHandler RejectedJobHandler
	observer           FiberObserver

	fibers  []*fiber
	workers []*workerThread

	jobs        *Queue[jobData]
	readyFibers *Queue[readyFiber]
	freeFibers  *Queue[FiberID]
	registry    *waitRegistry

	// signal wakes idle workers; it is a hint, a full channel drops the send.
	signal  chan struct{}
	baseCtx context.Context

	quit        atomic.Bool
	quitOnce    sync.Once
	destroyOnce sync.Once

	workerWG    sync.WaitGroup
	fiberWG     sync.WaitGroup
	workersDone chan struct{}

	inFlight      atomic.Int64 // accepted jobs that have not finished
	completed     atomic.Int64
	rejected      atomic.Int64
	fiberSwitches atomic.Int64
	fastPathWaits atomic.Int64

	history *executionHistory
}

// workerThread is the worker-local state of one worker thread. The worker
// token is handed from fiber to fiber; only the fiber holding it reads or
// writes these fields.
type workerThread struct {
	id int

	// initial is the worker's own goroutine. The last fiber to run on the
	// worker signals it at shutdown.
	initial chan struct{}

	currentFiberID        FiberID
	currentJobName        string
	fiberToPushToFreeList FiberID
	canBeMadeReadyFlag    *atomic.Bool

	idleTimer *time.Timer
}

func newWorkerThread(id int) *workerThread {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &workerThread{
		id:                    id,
		initial:               make(chan struct{}, 1),
		currentFiberID:        InvalidFiberID,
		fiberToPushToFreeList: InvalidFiberID,
		idleTimer:             t,
	}
}

// NewScheduler validates config, creates the fiber pool and starts the
// worker threads. A nil config uses DefaultSchedulerConfig.
func NewScheduler(config *SchedulerConfig) (*Scheduler, error) {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	s := &Scheduler{
		id:                 uuid.NewString(),
		config:             cfg,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		panicHandler:       cfg.PanicHandler,
		rejectedJobHandler: cfg.RejectedJobHandler,
		observer:           cfg.Observer,
		fibers:             make([]*fiber, 0, cfg.FiberCount),
		workers:            make([]*workerThread, 0, cfg.WorkerCount),
		jobs:               NewQueue[jobData](),
		readyFibers:        NewQueue[readyFiber](),
		freeFibers:         NewQueue[FiberID](),
		registry:           newWaitRegistry(),
		signal:             make(chan struct{}, cfg.WorkerCount*2),
		baseCtx:            context.Background(),
		workersDone:        make(chan struct{}),
		history:            newExecutionHistory(cfg.HistoryCapacity),
	}

	// First create all the fibers, then the threads that host them.
	for i := range cfg.FiberCount {
		f := newFiber(FiberID(i), s)
		s.fibers = append(s.fibers, f)
		s.freeFibers.Enqueue(f.id)
		s.fiberWG.Add(1)
		go s.fiberEntryPoint(f)
	}

	for i := range cfg.WorkerCount {
		w := newWorkerThread(i)
		s.workers = append(s.workers, w)
		s.workerWG.Add(1)
		go s.workerThreadEntryPoint(w)
	}

	go func() {
		s.workerWG.Wait()
		close(s.workersDone)
	}()

	s.logger.Info("scheduler started",
		F("scheduler", s.id),
		F("workers", cfg.WorkerCount),
		F("fibers", cfg.FiberCount),
		F("fiberStackSize", cfg.FiberStackSize))
	return s, nil
}

// ID returns the unique identifier of this scheduler instance.
func (s *Scheduler) ID() string {
	return s.id
}

// WorkerCount returns the number of worker threads.
func (s *Scheduler) WorkerCount() int {
	return len(s.workers)
}

// FiberCount returns the size of the fiber pool.
func (s *Scheduler) FiberCount() int {
	return len(s.fibers)
}

// =============================================================================
// Job submission and waiting
// =============================================================================

// RunJobs submits a batch of jobs.
//
// If counter is non-nil it is set to len(jobs) before any job is queued and
// each job of the batch decrements it once when it finishes. The counter must
// not be waited on by anyone while it is being reset. Jobs of a batch run in
// no particular order and possibly in parallel. An empty batch is a no-op.
//
// ctx is the job context when called from a job, or any other context
// otherwise. After Quit, batches submitted from outside a job are rejected;
// batches submitted by running jobs are still accepted so that the work in
// flight can drain.
func (s *Scheduler) RunJobs(ctx context.Context, name string, jobs []JobDecl, counter *Counter) {
	if len(jobs) == 0 {
		return
	}
	for i := range jobs {
		if jobs[i].EntryPoint == nil {
			panic(fmt.Sprintf("Scheduler: job %d of batch %q has no entry point", i, name))
		}
	}
	name = resolveJobName(jobs[0].EntryPoint, name)
	n := int64(len(jobs))

	// Count the batch in before looking at the quit flag, so a worker that
	// sees the flag also sees these jobs.
	s.inFlight.Add(n)
	if s.quit.Load() && activeJobFrame(ctx) == nil {
		s.rejected.Add(n)
		if s.inFlight.Add(-n) == 0 {
			s.wakeAll()
		}
		s.rejectedJobHandler.HandleRejectedBatch(name, len(jobs), "shutting down")
		s.metrics.RecordBatchRejected(name, "shutting down")
		return
	}

	if counter != nil {
		counter.set(uint32(len(jobs)))
	}
	for _, job := range jobs {
		s.jobs.Enqueue(jobData{decl: job, counter: counter, name: name})
		s.notify()
	}
	s.metrics.RecordQueueDepth(QueueJobs, s.jobs.Len())
}

// WaitForCounter suspends the calling job until counter holds target.
//
// It must be called from a job of this scheduler with the job's ctx; any
// other caller panics. If the counter already holds target it returns
// without switching fibers. Otherwise the fiber is parked and its worker runs
// other work until the last job needed to reach target finishes.
//
// Only one job may wait on a given counter at a time. A target the counter
// can no longer reach, or a second waiter, panics.
func (s *Scheduler) WaitForCounter(ctx context.Context, counter *Counter, target uint32) {
	if counter == nil {
		panic("Scheduler: WaitForCounter called with a nil counter")
	}
	frame := activeJobFrame(ctx)
	if frame == nil || frame.fiber.scheduler != s {
		panic("Scheduler: WaitForCounter must be called from a job running on this scheduler")
	}

	f := frame.fiber
	w := f.worker
	entry, parked := s.registry.register(counter, target, f, frame.name)
	if !parked {
		s.fastPathWaits.Add(1)
		return
	}

	// The next fiber on this worker sets the flag once our switch has landed.
	w.canBeMadeReadyFlag = &entry.canBeMadeReady

	parkedAt := time.Now()
	next := s.nextFreeFiber()
	w.currentFiberID = next.id
	s.metrics.RecordFiberSwitch(SwitchPark)
	w = f.switchTo(next, w)

	// Resumed, possibly on another worker.
	s.cleanUpOldFiber(w)

	waited := time.Since(parkedAt)
	frame.waited += waited
	s.metrics.RecordWaitDuration(frame.name, waited)
}

// RunJobsAndWait submits a batch with a fresh counter and waits for all of it.
// It must be called from a job.
func (s *Scheduler) RunJobsAndWait(ctx context.Context, name string, jobs []JobDecl) {
	var counter Counter
	s.RunJobs(ctx, name, jobs, &counter)
	s.WaitForCounter(ctx, &counter, 0)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Quit asks the workers to stop once every accepted job has finished.
// Quit is idempotent and never blocks.
func (s *Scheduler) Quit() {
	s.quitOnce.Do(func() {
		s.quit.Store(true)
		s.logger.Info("scheduler quitting",
			F("scheduler", s.id),
			F("inFlight", s.inFlight.Load()))
		s.wakeAll()
	})
}

// IsQuitting reports whether Quit has been called.
func (s *Scheduler) IsQuitting() bool {
	return s.quit.Load()
}

// WaitForCompletion blocks until every worker thread has exited, which
// happens after Quit once the work in flight has drained. It must not be
// called from a job.
func (s *Scheduler) WaitForCompletion() {
	<-s.workersDone
}

// Destroy quits the scheduler, joins all worker threads and tears down the
// fiber pool. It must not be called from a job. Destroy is idempotent.
func (s *Scheduler) Destroy() {
	s.destroyOnce.Do(func() {
		s.Quit()
		<-s.workersDone

		// No worker is left to hand out tokens; unwind the idle fibers.
		for _, f := range s.fibers {
			close(f.resume)
		}
		s.fiberWG.Wait()

		s.jobs.Clear()
		s.readyFibers.Clear()
		s.freeFibers.Clear()

		s.logger.Info("scheduler destroyed",
			F("scheduler", s.id),
			F("completed", s.completed.Load()),
			F("fiberSwitches", s.fiberSwitches.Load()))
	})
}

// =============================================================================
// Worker threads and the scheduler loop
// =============================================================================

func (s *Scheduler) workerThreadEntryPoint(w *workerThread) {
	defer s.workerWG.Done()

	// Take a fiber and give it this worker.
	f := s.nextFreeFiber()
	w.currentFiberID = f.id
	f.resume <- w

	// And we are back once the scheduler quits.
	<-w.initial
	s.logger.Debug("worker exited", F("scheduler", s.id), F("worker", w.id))
}

// fiberEntryPoint is the body of every fiber goroutine.
func (s *Scheduler) fiberEntryPoint(f *fiber) {
	defer s.fiberWG.Done()

	w := f.park()
	s.cleanUpOldFiber(w)

	for !s.shouldExit() {
		if !s.readyFibers.Empty() {
			rf, ok := s.readyFibers.Dequeue()
			if !ok {
				continue
			}
			next := s.fibers[rf.fiberID]
			next.transition(FiberReady, FiberRunning)

			// This fiber cannot go back to the free pool yet: another worker
			// could take it and enter it before the switch below completes.
			// The fiber we switch to recycles it.
			w.fiberToPushToFreeList = w.currentFiberID
			w.currentJobName = rf.jobName
			w.currentFiberID = rf.fiberID

			s.metrics.RecordFiberSwitch(SwitchResume)
			w = f.switchTo(next, w)
			s.cleanUpOldFiber(w)
		} else if !s.jobs.Empty() {
			jd, ok := s.jobs.Dequeue()
			if !ok {
				continue
			}
			w = s.runJob(f, w, jd)
		} else {
			s.idle(w)
		}
	}

	// Return the worker to its thread so it can finish.
	f.exit()
	w.initial <- struct{}{}
}

func (s *Scheduler) shouldExit() bool {
	return s.quit.Load() && s.inFlight.Load() == 0
}

// cleanUpOldFiber runs first whenever a fiber gains a worker. It recycles the
// fiber the worker switched away from, or tells a completing job that the
// fiber which just parked on this worker may now be made ready.
func (s *Scheduler) cleanUpOldFiber(w *workerThread) {
	if w.fiberToPushToFreeList != InvalidFiberID {
		old := s.fibers[w.fiberToPushToFreeList]
		w.fiberToPushToFreeList = InvalidFiberID
		old.transition(FiberRunning, FiberFree)
		s.freeFibers.Enqueue(old.id)
	} else if w.canBeMadeReadyFlag != nil {
		w.canBeMadeReadyFlag.Store(true)
		w.canBeMadeReadyFlag = nil
	}
}

// nextFreeFiber busy-waits until the free pool hands out a fiber. The pool
// is refilled as soon as any worker resumes a ready fiber.
func (s *Scheduler) nextFreeFiber() *fiber {
	var id FiberID
	spinUntil(s.config.SpinLimit, func() bool {
		var ok bool
		id, ok = s.freeFibers.Dequeue()
		return ok
	})
	f := s.fibers[id]
	f.transition(FiberFree, FiberRunning)
	return f
}

// runJob executes jd on f and settles its counter. It returns the worker f
// ends up on, which differs from w if the job waited.
func (s *Scheduler) runJob(f *fiber, w *workerThread, jd jobData) *workerThread {
	w.currentJobName = jd.name
	frame := &jobFrame{fiber: f, name: jd.name}

	startedAt := time.Now()
	s.executeJob(frame, jd)
	frame.done.Store(true)
	finishedAt := time.Now()

	w = f.worker
	w.currentJobName = ""

	duration := finishedAt.Sub(startedAt) - frame.waited
	s.history.Add(JobExecutionRecord{
		Name:       jd.name,
		FiberID:    f.id,
		WorkerID:   w.id,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Waited:     frame.waited,
	})
	s.metrics.RecordJobDuration(jd.name, duration)

	if jd.counter != nil {
		s.completeCounter(jd.counter)
	}

	s.completed.Add(1)
	if s.inFlight.Add(-1) == 0 && s.quit.Load() {
		s.wakeAll()
	}
	return w
}

// executeJob calls the entry point. A panic is reported and then re-raised;
// there is no isolation between jobs, so it takes the process down.
func (s *Scheduler) executeJob(frame *jobFrame, jd jobData) {
	ctx := withJobFrame(s.baseCtx, frame)
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			workerID := -1
			if w := frame.fiber.worker; w != nil {
				workerID = w.id
			}
			s.metrics.RecordJobPanic(jd.name, r)
			s.logger.Error("job panicked",
				F("scheduler", s.id),
				F("job", jd.name),
				F("worker", workerID),
				F("fiber", frame.fiber.id),
				F("panic", r))
			s.panicHandler.HandlePanic(ctx, jd.name, workerID, r, stack)
			panic(r)
		}
	}()
	jd.decl.EntryPoint(ctx, jd.decl.Data)
}

func (s *Scheduler) completeCounter(counter *Counter) {
	rf, ok := s.registry.complete(counter, s.config.SpinLimit)
	if !ok {
		return
	}
	s.fibers[rf.fiberID].transition(FiberParked, FiberReady)
	s.readyFibers.Enqueue(rf)
	s.metrics.RecordQueueDepth(QueueReady, s.readyFibers.Len())
	s.notify()
}

// idle sleeps until work is signalled or the idle timeout expires.
func (s *Scheduler) idle(w *workerThread) {
	w.idleTimer.Reset(s.config.IdleTimeout)
	select {
	case <-s.signal:
		w.idleTimer.Stop()
	case <-w.idleTimer.C:
	}
}

func (s *Scheduler) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; workers are awake already.
	}
}

func (s *Scheduler) wakeAll() {
	for range s.workers {
		s.notify()
	}
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		ID:             s.id,
		Workers:        len(s.workers),
		Fibers:         len(s.fibers),
		FiberStackSize: s.config.FiberStackSize,
		QueuedJobs:     s.jobs.Len(),
		ReadyFibers:    s.readyFibers.Len(),
		FreeFibers:     s.freeFibers.Len(),
		ParkedFibers:   s.registry.Len(),
		InFlightJobs:   s.inFlight.Load(),
		CompletedJobs:  s.completed.Load(),
		RejectedJobs:   s.rejected.Load(),
		FiberSwitches:  s.fiberSwitches.Load(),
		FastPathWaits:  s.fastPathWaits.Load(),
		Quitting:       s.quit.Load(),
	}
	select {
	case <-s.workersDone:
	default:
		stats.Running = true
	}
	if last, ok := s.history.Last(); ok {
		stats.LastJobName = last.Name
		stats.LastJobAt = last.FinishedAt
	}
	return stats
}

// RecentJobs returns completed job execution records in newest-first order.
func (s *Scheduler) RecentJobs(limit int) []JobExecutionRecord {
	return s.history.Recent(limit)
}

// FiberStates returns a snapshot of every fiber's state, indexed by FiberID.
func (s *Scheduler) FiberStates() []FiberState {
	states := make([]FiberState, len(s.fibers))
	for i, f := range s.fibers {
		states[i] = f.State()
	}
	return states
}
