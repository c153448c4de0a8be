// Package fdclock provides the injectable monotonic clock every fd*
// container uses to timestamp element mutations (spec.md §4.3's cache
// validity gate). Design note "Global state" in spec.md §9 asks for this
// to be a trait rather than a process-wide global; Clock is that trait.
package fdclock

import "sync/atomic"

// Clock issues strictly increasing timestamps. Two calls from the same
// Clock never return the same value.
type Clock interface {
	Now() int64
}

// monotonic is the default Clock, backed by an atomic counter rather than
// wall-clock time: containers only need strict ordering between
// mutations, never a real instant, and an atomic counter can't collide
// under a fast clock source the way time.Now().UnixNano() can on some
// platforms.
type monotonic struct {
	n atomic.Int64
}

func (m *monotonic) Now() int64 { return m.n.Add(1) }

var processClock = &monotonic{}

// Monotonic returns the default process-wide Clock.
func Monotonic() Clock { return processClock }

// Counter is a deterministic Clock for tests: it starts at 0 and
// increments by 1 on every call, so test assertions can predict exact
// timestamp values instead of just their relative order.
type Counter struct {
	n int64
}

// NewCounter returns a fresh deterministic Clock seeded at 0.
func NewCounter() *Counter { return &Counter{} }

func (c *Counter) Now() int64 {
	c.n++
	return c.n
}
