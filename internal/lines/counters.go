// Package lines holds per-line and per-branch execution data for source
// files, including the growable counter array updated by instrumented code.
package lines

import (
	"sync"

	"go.uber.org/atomic"
)

// growthSlack is how far past the requested index the counter array grows,
// so that files whose lines are registered in several batches resize rarely.
const growthSlack = 30

type counterSlots struct {
	slots []*atomic.Int64
}

// Counters is an array of execution counters indexed by line number.
// Increments never take a lock. Growing the array takes a mutex, copies the
// counter pointers into a larger array and publishes it; because the
// counters themselves are shared between the old and new arrays, no
// increment is lost while a resize is in progress.
type Counters struct {
	mu  sync.Mutex
	cur atomic.Pointer[counterSlots]
}

// NewCounters returns an array holding at least n counters.
func NewCounters(n int) *Counters {
	c := &Counters{}
	c.cur.Store(&counterSlots{slots: newSlots(nil, n)})
	return c
}

func newSlots(old []*atomic.Int64, n int) []*atomic.Int64 {
	slots := make([]*atomic.Int64, n)
	copy(slots, old)
	for i := len(old); i < n; i++ {
		slots[i] = atomic.NewInt64(0)
	}
	return slots
}

// Len returns the current capacity in counters.
func (c *Counters) Len() int {
	return len(c.cur.Load().slots)
}

// Grow makes index n-1 addressable.
func (c *Counters) Grow(n int) {
	if n <= c.Len() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cur.Load().slots
	if n <= len(old) {
		return
	}
	c.cur.Store(&counterSlots{slots: newSlots(old, n+growthSlack)})
}

// slot returns the counter at index i, growing the array when needed.
func (c *Counters) slot(i int) *atomic.Int64 {
	slots := c.cur.Load().slots
	if i >= len(slots) {
		c.Grow(i + 1)
		slots = c.cur.Load().slots
	}
	return slots[i]
}

// Inc increments counter i and returns its previous value.
func (c *Counters) Inc(i int) int64 {
	return c.slot(i).Inc() - 1
}

// Add adds delta to counter i.
func (c *Counters) Add(i int, delta int64) {
	c.slot(i).Add(delta)
}

// Get returns counter i, or 0 when i is beyond the array.
func (c *Counters) Get(i int) int64 {
	slots := c.cur.Load().slots
	if i < 0 || i >= len(slots) {
		return 0
	}
	return slots[i].Load()
}

// Snapshot copies all counter values.
func (c *Counters) Snapshot() []int64 {
	slots := c.cur.Load().slots
	out := make([]int64, len(slots))
	for i, s := range slots {
		out[i] = s.Load()
	}
	return out
}
