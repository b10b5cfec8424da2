package core

import "sync/atomic"

// Counter tracks outstanding jobs of a batch and is the only thing a job can
// wait on.
//
// Counters are owned by the caller, usually as a local variable of the
// submitting job. The zero value holds 0 and is ready to use. A Counter must
// outlive every job that references it and every wait on it, and must not be
// reused for a new batch while a fiber is still waiting on it.
type Counter struct {
	value atomic.Uint32
}

// Value returns the number of jobs of the last batch that have not finished yet.
func (c *Counter) Value() uint32 {
	return c.value.Load()
}

func (c *Counter) set(v uint32) {
	c.value.Store(v)
}

// decrement subtracts one and returns the new value.
func (c *Counter) decrement() uint32 {
	return c.value.Add(^uint32(0))
}
