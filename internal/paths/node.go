// Package paths builds the per-method control-flow node graph from a stream
// of structural events, enumerates every entry-to-exit path through it, and
// counts how often each path executes.
package paths

import "fmt"

// NoNode marks an absent edge or an event that created no node.
const NoNode = -1

// Kind is the variant of a Node.
type Kind uint8

const (
	KindEntry Kind = iota
	KindBasicBlock
	KindSimpleFork
	KindMultiFork
	KindJoin
	KindGoto
	KindExit
)

var kindNames = [...]string{
	KindEntry:      "Entry",
	KindBasicBlock: "BasicBlock",
	KindSimpleFork: "SimpleFork",
	KindMultiFork:  "MultiFork",
	KindJoin:       "Join",
	KindGoto:       "Goto",
	KindExit:       "Exit",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsFork reports whether k is a SimpleFork or MultiFork.
func (k Kind) IsFork() bool {
	return k == KindSimpleFork || k == KindMultiFork
}

// Node is a point in a method's control flow. Edges are indices into the
// owning Graph's node slice.
type Node struct {
	Kind Kind
	Line int
	// Segment distinguishes nodes sharing a source line, counting from 0.
	Segment int

	// Next is the consecutive successor: the first real node for Entry, the
	// fall-through for BasicBlock and SimpleFork, the continuation for Join.
	Next int
	// Jump is the SimpleFork's taken edge, or the Join reached after a goto
	// for BasicBlock, Goto and Join.
	Jump int
	// Cases are the MultiFork's distinct targets, in the order their Joins
	// were created.
	Cases []int

	// FromTrivialFork marks a Join reached through a fork whose two arms
	// only push the constants true and false.
	FromTrivialFork bool
}

// Successors returns the node's outgoing edges in traversal order.
func (n *Node) Successors() []int {
	var out []int
	switch n.Kind {
	case KindMultiFork:
		out = append(out, n.Cases...)
	case KindGoto:
		if n.Jump != NoNode {
			out = append(out, n.Jump)
		}
	case KindBasicBlock, KindJoin:
		if n.Jump != NoNode {
			out = append(out, n.Jump)
		} else if n.Next != NoNode {
			out = append(out, n.Next)
		}
	default:
		if n.Jump != NoNode {
			out = append(out, n.Jump)
		}
		if n.Next != NoNode {
			out = append(out, n.Next)
		}
	}
	return out
}

func (n Node) String() string {
	return fmt.Sprintf("%s@%d.%d", n.Kind, n.Line, n.Segment)
}

// Graph is the arena of nodes for one method. Nodes are only appended, so
// node indices are stable and give creation order.
type Graph struct {
	Nodes []Node
	// exitPaths holds, per Exit node index, the ordinals of the enumerated
	// paths that end there.
	exitPaths map[int][]int
}

func newGraph() *Graph {
	return &Graph{exitPaths: make(map[int][]int)}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

// Node returns a pointer to the node at index i.
func (g *Graph) Node(i int) *Node { return &g.Nodes[i] }

// EntryLine is the line of the Entry node, which keys the method within its
// file.
func (g *Graph) EntryLine() int {
	if len(g.Nodes) == 0 {
		return 0
	}
	return g.Nodes[0].Line
}

// Exits returns the indices of all Exit nodes in creation order.
func (g *Graph) Exits() []int {
	var exits []int
	for i := range g.Nodes {
		if g.Nodes[i].Kind == KindExit {
			exits = append(exits, i)
		}
	}
	return exits
}

// PathsEndingAt returns the ordinals of the paths ending at Exit node i.
func (g *Graph) PathsEndingAt(i int) []int {
	return g.exitPaths[i]
}

func (g *Graph) add(n Node) int {
	n.Segment = g.segmentFor(n)
	g.Nodes = append(g.Nodes, n)
	return len(g.Nodes) - 1
}

func (g *Graph) segmentFor(n Node) int {
	if len(g.Nodes) == 0 {
		return 0
	}
	prev := g.Nodes[len(g.Nodes)-1]
	if prev.Line != n.Line {
		return 0
	}
	if n.Kind == KindJoin || prev.Kind.IsFork() {
		return prev.Segment + 1
	}
	return prev.Segment
}
