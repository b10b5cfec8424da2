package core

import (
	"fmt"
	"math"
	"sync"
)

// waitRegistry maps a counter to the single fiber parked on it.
//
// One mutex guards the whole map. Registration and the completion-side
// decrement both run under it, so a wait can never miss the decrement that
// satisfies it.
type waitRegistry struct {
	mu      sync.Mutex
	waiting map[*Counter]*waitingFiber
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{waiting: make(map[*Counter]*waitingFiber)}
}

// register parks f on counter until it drops to target. It returns false,
// without registering anything, when the counter already holds target.
//
// Only one fiber may wait on a counter at a time; a second waiter panics.
func (r *waitRegistry) register(counter *Counter, target uint32, f *fiber, jobName string) (*waitingFiber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := counter.Value()
	if v == target {
		return nil, false
	}
	if v < target {
		panic(fmt.Sprintf("Scheduler: job %q waits for counter value %d but the counter is already at %d", jobName, target, v))
	}
	if existing, ok := r.waiting[counter]; ok {
		panic(fmt.Sprintf("Scheduler: job %q waits on a counter already waited on by job %q (fiber %d); only one waiter per counter is supported",
			jobName, existing.jobName, existing.fiberID))
	}

	f.transition(FiberRunning, FiberParked)
	entry := &waitingFiber{
		fiberID: f.id,
		target:  target,
		jobName: jobName,
	}
	r.waiting[counter] = entry
	return entry, true
}

// complete decrements counter for one finished job. When that satisfies the
// parked waiter, it waits for the waiter's switch away to land, removes the
// entry and returns the fiber to make ready.
func (r *waitRegistry) complete(counter *Counter, spinLimit int) (readyFiber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := counter.decrement()
	if v == math.MaxUint32 {
		panic("Scheduler: counter decremented below zero; a counter was reused while its batch was still running")
	}

	entry, ok := r.waiting[counter]
	if !ok || v > entry.target {
		return readyFiber{}, false
	}

	spinUntil(spinLimit, entry.canBeMadeReady.Load)
	delete(r.waiting, counter)
	return readyFiber{fiberID: entry.fiberID, jobName: entry.jobName}, true
}

// Len returns the number of parked fibers.
func (r *waitRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting)
}
