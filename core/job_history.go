package core

import (
	"reflect"
	"runtime"
	"sync"

	"github.com/gammazero/deque"
)

// executionHistory keeps the newest records up to a fixed capacity. The
// oldest record is dropped from the front once the deque is full.
type executionHistory struct {
	mu       sync.Mutex
	records  deque.Deque[JobExecutionRecord]
	capacity int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultHistoryCapacity
	}
	return &executionHistory{capacity: capacity}
}

func (h *executionHistory) Add(record JobExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.records.Len() == h.capacity {
		h.records.PopFront()
	}
	h.records.PushBack(record)
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *executionHistory) Recent(limit int) []JobExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.records.Len()
	if n == 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]JobExecutionRecord, limit)
	for i := range out {
		out[i] = h.records.At(n - 1 - i)
	}
	return out
}

func (h *executionHistory) Last() (JobExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.records.Len() == 0 {
		return JobExecutionRecord{}, false
	}
	return h.records.Back(), true
}

// resolveJobName picks the batch name, falling back to the entry point's
// function name.
func resolveJobName(entry JobEntryPoint, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if entry == nil {
		return "anonymous"
	}

	pc := reflect.ValueOf(entry).Pointer()
	if pc == 0 {
		return "anonymous"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}
