package fiberjobs

import (
	"fmt"
	"sync"

	"github.com/Swind/go-fiber-jobs/core"
)

// CreateScheduler creates and starts a scheduler with workerCount worker
// threads and a pool of fiberCount fibers. It panics if the sizes cannot
// produce a working scheduler; use core.NewScheduler to get an error instead.
func CreateScheduler(workerCount, fiberCount, fiberStackSize int) *Scheduler {
	cfg := core.DefaultSchedulerConfig()
	cfg.WorkerCount = workerCount
	cfg.FiberCount = fiberCount
	cfg.FiberStackSize = fiberStackSize
	return CreateSchedulerWithConfig(cfg)
}

// CreateSchedulerWithConfig creates and starts a scheduler from a full config.
// It panics on an invalid config.
func CreateSchedulerWithConfig(cfg *SchedulerConfig) *Scheduler {
	s, err := core.NewScheduler(cfg)
	if err != nil {
		panic(fmt.Sprintf("CreateScheduler: %v", err))
	}
	return s
}

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler creates the process-wide scheduler with the given sizes.
// Calling it again while a global scheduler exists is a no-op.
func InitGlobalScheduler(workerCount, fiberCount, fiberStackSize int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return // Already initialized
	}

	globalScheduler = CreateScheduler(workerCount, fiberCount, fiberStackSize)
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("GlobalScheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler destroys the global scheduler, waiting for the work
// in flight to drain.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		globalScheduler.Destroy()
		globalScheduler = nil
	}
}
