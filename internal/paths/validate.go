package paths

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Validate checks the structural invariants of a finished graph: every edge
// points to an existing, later node, the graph is acyclic, and every node is
// reachable from Entry.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 || g.Nodes[0].Kind != KindEntry {
		return &InvariantError{Event: "finish", Msg: "graph does not start with an Entry node"}
	}

	dg := simple.NewDirectedGraph()
	for i := range g.Nodes {
		dg.AddNode(simple.Node(int64(i)))
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for _, s := range n.Successors() {
			if s <= i || s >= len(g.Nodes) {
				return &InvariantError{Event: "finish", Line: n.Line,
					Msg: fmt.Sprintf("%s has edge to invalid node %d", n, s)}
			}
			dg.SetEdge(dg.NewEdge(simple.Node(int64(i)), simple.Node(int64(s))))
		}
		if err := checkEdges(n); err != nil {
			return err
		}
	}

	if _, err := topo.Sort(dg); err != nil {
		return &InvariantError{Event: "finish", Line: g.EntryLine(), Msg: fmt.Sprintf("graph has a cycle: %v", err)}
	}

	var bfs traverse.BreadthFirst
	bfs.Walk(dg, simple.Node(0), nil)
	for i := range g.Nodes {
		if !bfs.Visited(simple.Node(int64(i))) {
			return &InvariantError{Event: "finish", Line: g.Nodes[i].Line,
				Msg: fmt.Sprintf("%s is unreachable from entry", g.Nodes[i])}
		}
	}
	return nil
}

func checkEdges(n *Node) error {
	var missing string
	switch n.Kind {
	case KindSimpleFork:
		if n.Jump == NoNode || n.Next == NoNode {
			missing = "both fork edges"
		}
	case KindMultiFork:
		if len(n.Cases) == 0 {
			missing = "case edges"
		}
	case KindGoto:
		if n.Jump == NoNode {
			missing = "a jump target"
		}
	}
	if missing != "" {
		return &InvariantError{Event: "finish", Line: n.Line, Msg: fmt.Sprintf("%s lacks %s", n, missing)}
	}
	return nil
}
