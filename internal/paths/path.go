package paths

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// Path is one entry-to-exit node sequence through a method.
//
// A shadowed path is the false-arm twin of a trivial boolean fork: it is
// enumerated and matched like any other path, but it is not reported on its
// own. Its executions are added to its non-shadowed partner instead.
type Path struct {
	nodes    []int
	sig      uint64
	shadowed bool
	// shadow is the shadowed twin of a non-shadowed path, if any.
	shadow *Path
	count  atomic.Int64
}

func newPath(nodes []int, shadowed bool) *Path {
	return &Path{nodes: nodes, shadowed: shadowed}
}

// Nodes returns the node indices of the path in traversal order. The caller
// must not modify the result.
func (p *Path) Nodes() []int { return p.nodes }

// Shadowed reports whether the path is a trivial-fork shadow.
func (p *Path) Shadowed() bool { return p.shadowed }

// Shadow returns the shadowed twin of this path, or nil.
func (p *Path) Shadow() *Path { return p.shadow }

// Signature returns the xxhash of the node sequence.
func (p *Path) Signature() uint64 { return p.sig }

// OwnCount returns the executions counted on this path alone.
func (p *Path) OwnCount() int64 { return p.count.Load() }

// ExecutionCount returns the path's executions plus those of its shadow.
func (p *Path) ExecutionCount() int64 {
	n := p.count.Load()
	if p.shadow != nil {
		n += p.shadow.count.Load()
	}
	return n
}

// Covered reports whether the path, or its shadow, ran at least once.
func (p *Path) Covered() bool { return p.ExecutionCount() > 0 }

// CountExecutionIfAllNodesWereReached increments the path's count when seq
// is exactly its node sequence. It returns the count before the increment,
// or -1 when seq does not match.
func (p *Path) CountExecutionIfAllNodesWereReached(seq []int) int64 {
	if len(seq) != len(p.nodes) || signature(seq) != p.sig || !slices.Equal(seq, p.nodes) {
		return -1
	}
	return p.count.Inc() - 1
}

// addCount folds in executions from a previous run.
func (p *Path) addCount(n int64) {
	if n != 0 {
		p.count.Add(n)
	}
}

func signature(nodes []int) uint64 {
	d := xxhash.New()
	var buf [binary.MaxVarintLen64]byte
	for _, n := range nodes {
		k := binary.PutVarint(buf[:], int64(n))
		d.Write(buf[:k])
	}
	return d.Sum64()
}

// Enumerate walks g from its Entry node and returns every path, grouped by
// Exit node in node-creation order. Each Exit node remembers the ordinals of
// the paths ending at it.
func Enumerate(g *Graph) []*Path {
	g.exitPaths = make(map[int][]int)
	if len(g.Nodes) <= 1 {
		return nil
	}

	e := &enumerator{g: g, byExit: make(map[int][]*Path)}
	first := g.Nodes[0].Next
	if first == NoNode {
		first = 1
	}
	start := newPath([]int{0}, false)
	e.walk(start, first)

	var all []*Path
	for _, exit := range g.Exits() {
		for _, p := range e.byExit[exit] {
			p.sig = signature(p.nodes)
			g.exitPaths[exit] = append(g.exitPaths[exit], len(all))
			all = append(all, p)
		}
	}
	return all
}

type enumerator struct {
	g      *Graph
	byExit map[int][]*Path
}

// walk extends p from node idx until it reaches an Exit. Forks spawn
// alternate paths, each a copy of p up to and including the fork.
func (e *enumerator) walk(p *Path, idx int) {
	for idx != NoNode {
		n := &e.g.Nodes[idx]
		p.nodes = append(p.nodes, idx)

		switch n.Kind {
		case KindExit:
			e.byExit[idx] = append(e.byExit[idx], p)
			return
		case KindSimpleFork:
			if n.Jump != NoNode {
				e.alternate(p, n.Jump)
			}
			idx = n.Next
		case KindMultiFork:
			for _, c := range n.Cases {
				e.alternate(p, c)
			}
			return
		case KindGoto:
			idx = n.Jump
		default:
			if n.Jump != NoNode {
				idx = n.Jump
			} else {
				idx = n.Next
			}
		}
	}
}

func (e *enumerator) alternate(parent *Path, join int) {
	shadowed := e.g.Nodes[join].FromTrivialFork
	alt := newPath(slices.Clone(parent.nodes), shadowed)
	if shadowed {
		parent.shadow = alt
	}
	e.walk(alt, join)
}
