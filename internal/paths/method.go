package paths

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// ErrShapeMismatch is returned when merging path data of two methods whose
// enumerated paths differ.
var ErrShapeMismatch = errors.New("path structure differs between runs")

// MethodData holds the graph and enumerated paths of one method.
type MethodData struct {
	Name      string
	FirstLine int
	LastLine  int

	graph *Graph
	// paths is every enumerated path, shadows included, grouped by Exit.
	paths []*Path
	// reported excludes shadowed paths.
	reported []*Path
	// owner is the dirty flag of the file-level totals cache.
	owner *atomic.Bool
}

// NewMethodData enumerates the paths of g.
func NewMethodData(name string, g *Graph, lastLine int) *MethodData {
	m := &MethodData{
		Name:      name,
		FirstLine: g.EntryLine(),
		LastLine:  lastLine,
		graph:     g,
		paths:     Enumerate(g),
	}
	m.indexReported()
	return m
}

func (m *MethodData) indexReported() {
	m.reported = m.reported[:0]
	for _, p := range m.paths {
		if !p.shadowed {
			m.reported = append(m.reported, p)
		}
	}
}

// Graph returns the method's node graph.
func (m *MethodData) Graph() *Graph { return m.graph }

// AllPaths returns every path including shadows, in enumeration order.
func (m *MethodData) AllPaths() []*Path { return m.paths }

// Paths returns the non-shadowed paths.
func (m *MethodData) Paths() []*Path { return m.reported }

// TotalPaths is the number of non-shadowed paths.
func (m *MethodData) TotalPaths() int { return len(m.reported) }

// CoveredPaths is the number of non-shadowed paths executed at least once,
// counting executions of their shadows.
func (m *MethodData) CoveredPaths() int {
	n := 0
	for _, p := range m.reported {
		if p.Covered() {
			n++
		}
	}
	return n
}

// ExecutionCount sums the executions of all non-shadowed paths.
func (m *MethodData) ExecutionCount() int64 {
	var n int64
	for _, p := range m.reported {
		n += p.ExecutionCount()
	}
	return n
}

// RegisterPathExecution counts one execution of the path whose node
// sequence equals seq. Only paths ending at the sequence's last node are
// candidates. It returns the path's previous count, or -1 when no path
// matches.
func (m *MethodData) RegisterPathExecution(seq []int) int64 {
	if len(seq) < 2 {
		return -1
	}
	exit := seq[len(seq)-1]
	if exit < 0 || exit >= m.graph.Len() || m.graph.Nodes[exit].Kind != KindExit {
		return -1
	}
	sig := signature(seq)
	for _, ord := range m.graph.PathsEndingAt(exit) {
		p := m.paths[ord]
		if p.sig == sig {
			if prev := p.CountExecutionIfAllNodesWereReached(seq); prev >= 0 {
				if prev == 0 && m.owner != nil {
					m.owner.Store(true)
				}
				return prev
			}
		}
	}
	return -1
}

// AddCountsFromPreviousRun adds the per-path counts of prev, matched by
// position. Both methods must have the same enumerated paths.
func (m *MethodData) AddCountsFromPreviousRun(prev *MethodData) error {
	if len(prev.paths) != len(m.paths) {
		return fmt.Errorf("method %s at line %d: %d paths now, %d before: %w",
			m.Name, m.FirstLine, len(m.paths), len(prev.paths), ErrShapeMismatch)
	}
	for i, p := range m.paths {
		if p.sig != prev.paths[i].sig {
			return fmt.Errorf("method %s at line %d: path %d differs: %w", m.Name, m.FirstLine, i, ErrShapeMismatch)
		}
	}
	for i, p := range m.paths {
		p.addCount(prev.paths[i].count.Load())
	}
	return nil
}

// clone returns an independent copy of m sharing only the immutable graph.
func (m *MethodData) clone() *MethodData {
	c := NewMethodData(m.Name, m.graph, m.LastLine)
	c.FirstLine = m.FirstLine
	for i, p := range c.paths {
		p.addCount(m.paths[i].count.Load())
	}
	return c
}

// Trace records the nodes reached during one execution of a method. Each
// goroutine executing the method needs its own Trace.
type Trace struct {
	m       *MethodData
	mu      sync.Mutex
	reached []int
	seen    map[int]bool
}

// NewTrace starts recording one execution.
func (m *MethodData) NewTrace() *Trace {
	return &Trace{m: m, seen: make(map[int]bool)}
}

// MarkReached notes that node idx was reached; indices outside the graph are
// ignored. Reaching node 0 (the Entry)
// starts a new execution. A node is added only the first time it is reached
// and only after a lower-numbered node, so loop iterations collapse into the
// forward path. When idx is an Exit, the trace is matched against the paths
// ending there and the matched path's previous count is returned; otherwise,
// or when nothing matches, the result is -1.
func (t *Trace) MarkReached(idx int) int64 {
	if idx < 0 || idx >= t.m.graph.Len() {
		return -1
	}
	t.mu.Lock()
	if idx == 0 {
		t.reached = t.reached[:0]
		clear(t.seen)
	}
	if t.seen[idx] || (idx != 0 && (len(t.reached) == 0 || idx <= t.reached[len(t.reached)-1])) {
		t.mu.Unlock()
		return -1
	}
	t.seen[idx] = true
	t.reached = append(t.reached, idx)

	if t.m.graph.Nodes[idx].Kind != KindExit {
		t.mu.Unlock()
		return -1
	}
	seq := append([]int(nil), t.reached...)
	t.mu.Unlock()
	return t.m.RegisterPathExecution(seq)
}

// Reached returns a copy of the nodes recorded so far.
func (t *Trace) Reached() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.reached...)
}
