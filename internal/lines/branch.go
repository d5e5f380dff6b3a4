package lines

import (
	"slices"
	"sync"

	"go.uber.org/atomic"
)

// MaxCallPoints bounds the distinct call points kept per line or branch.
const MaxCallPoints = 10

// CallPoint identifies a test that reached a line or branch.
type CallPoint struct {
	Test        string `json:"test"`
	Repetitions int    `json:"repetitions"`
}

type callPoints struct {
	mu   sync.Mutex
	list []CallPoint
}

func (c *callPoints) acceptsMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list) < MaxCallPoints
}

func (c *callPoints) add(test string) {
	if test == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.list {
		if c.list[i].Test == test {
			c.list[i].Repetitions++
			return
		}
	}
	if len(c.list) < MaxCallPoints {
		c.list = append(c.list, CallPoint{Test: test, Repetitions: 1})
	}
}

func (c *callPoints) snapshot() []CallPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.list)
}

func (c *callPoints) merge(prev []CallPoint) {
	for _, cp := range prev {
		c.mu.Lock()
		found := false
		for i := range c.list {
			if c.list[i].Test == cp.Test {
				c.list[i].Repetitions += cp.Repetitions
				found = true
				break
			}
		}
		if !found && len(c.list) < MaxCallPoints {
			c.list = append(c.list, cp)
		}
		c.mu.Unlock()
	}
}

// BranchData is one side of a branching point: the jump source (the
// fall-through side) or the jump target.
type BranchData struct {
	line        int
	count       atomic.Int64
	empty       bool
	unreachable bool
	invalid     bool
	calls       callPoints
}

func newBranch(line int) *BranchData {
	return &BranchData{line: line}
}

// Line is the source line of the branch, or 0 while a forward target is
// still unresolved.
func (b *BranchData) Line() int { return b.line }

// SetLine resolves the line of a forward jump target.
func (b *BranchData) SetLine(line int) { b.line = line }

// ExecutionCount returns how often the branch ran.
func (b *BranchData) ExecutionCount() int64 { return b.count.Load() }

// Empty reports whether the branch has no code of its own on its line.
func (b *BranchData) Empty() bool { return b.empty }

// MarkEmpty flags the branch as having no code of its own.
func (b *BranchData) MarkEmpty() { b.empty = true }

// MarkUnreachable flags the branch as never expected to run, which counts
// it as covered.
func (b *BranchData) MarkUnreachable() { b.unreachable = true }

// Invalid reports whether the branch was withdrawn by the instrumenter.
func (b *BranchData) Invalid() bool { return b.invalid }

// Covered applies the segment coverage rule.
func (b *BranchData) Covered() bool {
	return b.unreachable || (!b.empty && b.count.Load() > 0)
}

// reached ignores emptiness: an empty target still counts as a taken jump
// for the branch metric.
func (b *BranchData) reached() bool {
	return b.unreachable || b.count.Load() > 0
}

// CallPoints returns the recorded call points.
func (b *BranchData) CallPoints() []CallPoint { return b.calls.snapshot() }

func (b *BranchData) clone() *BranchData {
	c := newBranch(b.line)
	c.count.Store(b.count.Load())
	c.empty, c.unreachable, c.invalid = b.empty, b.unreachable, b.invalid
	c.calls.list = b.calls.snapshot()
	return c
}

func (b *BranchData) register(test string) int64 {
	prev := b.count.Inc() - 1
	b.calls.add(test)
	return prev
}
