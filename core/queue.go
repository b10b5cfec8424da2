package core

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a thread-safe multi-producer, multi-consumer FIFO.
//
// The scheduler uses three instances of it: the job queue, the ready-fiber
// queue and the free-fiber pool. Every operation holds the mutex for O(1)
// work only.
type Queue[T any] struct {
	mu    sync.Mutex
	items deque.Deque[T]
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends item at the tail. It never fails and is visible to any
// subsequent Dequeue from any goroutine.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(item)
}

// Dequeue removes the head of the queue. It returns false without blocking
// when the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.items.PopFront(), true
}

// Empty reports whether the queue was empty at the time of the call.
// A concurrent Enqueue or Dequeue may invalidate the answer immediately, so
// callers must only use it as a scheduling hint.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns a snapshot of the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear drops every queued item and releases the references they hold.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Clear()
}
