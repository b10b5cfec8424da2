package core

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
)

// FiberID indexes a fiber in its scheduler's fiber arena.
type FiberID uint32

// InvalidFiberID marks "no fiber" in worker-local state.
const InvalidFiberID FiberID = math.MaxUint32

// FiberState is the container a fiber currently belongs to.
type FiberState int32

const (
	// FiberFree: in the free pool, owned by the pool.
	FiberFree FiberState = iota
	// FiberRunning: owned by exactly one worker thread.
	FiberRunning
	// FiberParked: owned by the wait registry.
	FiberParked
	// FiberReady: owned by the ready queue, about to resume.
	FiberReady
)

func (s FiberState) String() string {
	switch s {
	case FiberFree:
		return "free"
	case FiberRunning:
		return "running"
	case FiberParked:
		return "parked"
	case FiberReady:
		return "ready"
	default:
		return fmt.Sprintf("FiberState(%d)", int32(s))
	}
}

// FiberObserver receives a callback every time a worker starts or stops
// executing a fiber. Calls for one fiber never overlap; calls for different
// fibers arrive concurrently. Implementations must be fast and must not call
// back into the scheduler.
type FiberObserver interface {
	FiberEntered(fiberID FiberID, workerID int)
	FiberExited(fiberID FiberID, workerID int)
}

// fiber is a goroutine that only executes while it holds a worker token.
// Tokens are handed over through resume; the goroutine blocks on it whenever
// it is not running.
type fiber struct {
	id        FiberID
	scheduler *Scheduler
	resume    chan *workerThread

	// worker is the token the fiber currently executes on. Only the fiber's
	// own goroutine touches it, and only while it holds the token.
	worker *workerThread

	state    atomic.Int32
	occupied atomic.Int32
}

func newFiber(id FiberID, s *Scheduler) *fiber {
	f := &fiber{
		id:        id,
		scheduler: s,
		resume:    make(chan *workerThread, 1),
	}
	f.state.Store(int32(FiberFree))
	return f
}

// State returns a snapshot of the fiber state.
func (f *fiber) State() FiberState {
	return FiberState(f.state.Load())
}

// transition moves the fiber between containers. A fiber is in exactly one
// state at a time; any other starting state is a scheduler bug.
func (f *fiber) transition(from, to FiberState) {
	if !f.state.CompareAndSwap(int32(from), int32(to)) {
		panic(fmt.Sprintf("Scheduler: fiber %d transition %s -> %s from state %s",
			f.id, from, to, f.State()))
	}
}

// enter marks the start of execution on w.
func (f *fiber) enter(w *workerThread) {
	if n := f.occupied.Add(1); n != 1 {
		panic(fmt.Sprintf("Scheduler: fiber %d entered by worker %d while occupied (%d)", f.id, w.id, n))
	}
	f.worker = w
	if obs := f.scheduler.observer; obs != nil {
		obs.FiberEntered(f.id, w.id)
	}
}

// exit marks the end of execution on the current worker.
func (f *fiber) exit() {
	w := f.worker
	if obs := f.scheduler.observer; obs != nil {
		obs.FiberExited(f.id, w.id)
	}
	f.worker = nil
	f.occupied.Add(-1)
}

// park blocks the fiber goroutine until a worker token arrives. When the
// scheduler is destroyed the resume channel is closed and the goroutine is
// unwound instead.
func (f *fiber) park() *workerThread {
	w, ok := <-f.resume
	if !ok {
		runtime.Goexit()
	}
	f.enter(w)
	return w
}

// switchTo hands w over to next and suspends f until it is resumed, possibly
// on another worker. It returns the worker f resumed on.
func (f *fiber) switchTo(next *fiber, w *workerThread) *workerThread {
	f.scheduler.fiberSwitches.Add(1)
	f.exit()
	next.resume <- w
	return f.park()
}

// spinUntil calls cond until it returns true, yielding the processor after
// limit failed attempts.
func spinUntil(limit int, cond func() bool) {
	for i := 0; !cond(); i++ {
		if i >= limit {
			runtime.Gosched()
		}
	}
}
