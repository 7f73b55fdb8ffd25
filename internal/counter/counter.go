// Package counter provides a lock-free counter used for job generation
// numbers and rolling hashrate, grounded on the original client's
// Counter(Arc<AtomicUsize>, usize): a relaxed fast path for the worker
// hot loop plus a slower seq-cst bump used when a job and its generation
// number must be observed together.
package counter

import "sync/atomic"

// Counter wraps an atomic uint64 with a remembered initial value so it
// can be reset by Clear without needing to know what "zero" means for a
// particular use (hashrate resets to 0, jobsc resets to 1).
type Counter struct {
	v    atomic.Uint64
	init uint64
}

// New returns a Counter starting at init.
func New(init uint64) *Counter {
	c := &Counter{init: init}
	c.v.Store(init)
	return c
}

// Add bumps the counter by num and returns the value before the add,
// mirroring Rust's fetch_add. Go's atomic.Uint64 has no relaxed-ordering
// variant, so this and AddSlow behave identically on this platform; the
// two names are kept distinct to mark which call sites the original
// treats as a hot, order-insensitive path versus one requiring the job
// and its generation counter to become visible together.
func (c *Counter) Add(num uint64) uint64 {
	return c.v.Add(num) - num
}

// AddSlow is the seq-cst sibling of Add, used when incrementing jobsc so
// that workers which observe a new generation number also observe the
// job value written just before it.
func (c *Counter) AddSlow(num uint64) uint64 {
	return c.Add(num)
}

// Clear resets the counter to its initial value and returns the value it
// held before the reset.
func (c *Counter) Clear() uint64 {
	return c.v.Swap(c.init)
}

// Get loads the current value.
func (c *Counter) Get() uint64 {
	return c.v.Load()
}
