package paths

import (
	"encoding/json"
	"fmt"
	"slices"
)

type nodeJSON struct {
	Kind    string `json:"kind"`
	Line    int    `json:"line"`
	Segment int    `json:"segment,omitempty"`
	Next    int    `json:"next"`
	Jump    int    `json:"jump"`
	Cases   []int  `json:"cases,omitempty"`
	Trivial bool   `json:"trivial,omitempty"`
}

type pathJSON struct {
	Nodes    []int `json:"nodes"`
	Shadowed bool  `json:"shadowed,omitempty"`
	Count    int64 `json:"count"`
}

type methodJSON struct {
	Name      string     `json:"name"`
	FirstLine int        `json:"first_line"`
	LastLine  int        `json:"last_line"`
	Nodes     []nodeJSON `json:"nodes"`
	Paths     []pathJSON `json:"paths"`
}

func parseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// MarshalJSON encodes the graph and per-path counts.
func (m *MethodData) MarshalJSON() ([]byte, error) {
	out := methodJSON{Name: m.Name, FirstLine: m.FirstLine, LastLine: m.LastLine}
	for _, n := range m.graph.Nodes {
		out.Nodes = append(out.Nodes, nodeJSON{
			Kind: n.Kind.String(), Line: n.Line, Segment: n.Segment,
			Next: n.Next, Jump: n.Jump, Cases: n.Cases, Trivial: n.FromTrivialFork,
		})
	}
	for _, p := range m.paths {
		out.Paths = append(out.Paths, pathJSON{Nodes: p.nodes, Shadowed: p.shadowed, Count: p.count.Load()})
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the graph, re-enumerates its paths and restores
// their counts. Stored paths that do not match the enumeration are rejected.
func (m *MethodData) UnmarshalJSON(data []byte) error {
	var in methodJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	g := newGraph()
	for _, n := range in.Nodes {
		k, err := parseKind(n.Kind)
		if err != nil {
			return fmt.Errorf("method %s: %w", in.Name, err)
		}
		g.Nodes = append(g.Nodes, Node{
			Kind: k, Line: n.Line, Segment: n.Segment,
			Next: n.Next, Jump: n.Jump, Cases: n.Cases, FromTrivialFork: n.Trivial,
		})
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("method %s: %w", in.Name, err)
	}

	restored := NewMethodData(in.Name, g, in.LastLine)
	if len(restored.paths) != len(in.Paths) {
		return fmt.Errorf("method %s: stored %d paths, graph has %d: %w", in.Name, len(in.Paths), len(restored.paths), ErrShapeMismatch)
	}
	for i, p := range restored.paths {
		if !slices.Equal(p.nodes, in.Paths[i].Nodes) || p.shadowed != in.Paths[i].Shadowed {
			return fmt.Errorf("method %s: stored path %d differs: %w", in.Name, i, ErrShapeMismatch)
		}
		p.count.Store(in.Paths[i].Count)
	}
	restored.FirstLine = in.FirstLine

	m.Name, m.FirstLine, m.LastLine = restored.Name, restored.FirstLine, restored.LastLine
	m.graph, m.paths = restored.graph, restored.paths
	m.indexReported()
	return nil
}

// MarshalJSON encodes the file's methods ordered by entry line.
func (p *PerFilePaths) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Methods())
}

// UnmarshalJSON restores the methods; cached totals are recomputed on
// first use.
func (p *PerFilePaths) UnmarshalJSON(data []byte) error {
	var methods []*MethodData
	if err := json.Unmarshal(data, &methods); err != nil {
		return err
	}
	p.mu.Lock()
	p.methods = make(map[int]*MethodData, len(methods))
	for _, m := range methods {
		m.owner = &p.dirty
		p.methods[m.FirstLine] = m
	}
	p.mu.Unlock()
	p.dirty.Store(true)
	return nil
}
