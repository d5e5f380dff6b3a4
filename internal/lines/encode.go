package lines

import "encoding/json"

type branchJSON struct {
	Line        int         `json:"line"`
	Count       int64       `json:"count,omitempty"`
	Empty       bool        `json:"empty,omitempty"`
	Unreachable bool        `json:"unreachable,omitempty"`
	Invalid     bool        `json:"invalid,omitempty"`
	CallPoints  []CallPoint `json:"call_points,omitempty"`
}

type lineJSON struct {
	Line        int          `json:"line"`
	Count       int64        `json:"count,omitempty"`
	Unreachable bool         `json:"unreachable,omitempty"`
	Branches    []branchJSON `json:"branches,omitempty"`
	CallPoints  []CallPoint  `json:"call_points,omitempty"`
}

// MarshalJSON encodes every executable line with its counts.
func (p *PerFileLines) MarshalJSON() ([]byte, error) {
	var out []lineJSON
	for _, line := range p.Lines() {
		ld, _ := p.LineData(line)
		lj := lineJSON{
			Line:        line,
			Count:       p.counts.Get(line),
			Unreachable: ld.unreachable,
			CallPoints:  ld.calls.snapshot(),
		}
		for _, b := range ld.branches {
			lj.Branches = append(lj.Branches, branchJSON{
				Line: b.line, Count: b.count.Load(), Empty: b.empty,
				Unreachable: b.unreachable, Invalid: b.invalid, CallPoints: b.calls.snapshot(),
			})
		}
		out = append(out, lj)
	}
	if out == nil {
		out = []lineJSON{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores lines and counts; cached totals are recomputed on
// first use.
func (p *PerFileLines) UnmarshalJSON(data []byte) error {
	var in []lineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	fresh := NewPerFileLines()
	for _, lj := range in {
		ld := fresh.addLineLocked(lj.Line)
		ld.unreachable = lj.Unreachable
		ld.calls.list = lj.CallPoints
		for _, bj := range lj.Branches {
			b := newBranch(bj.Line)
			b.count.Store(bj.Count)
			b.empty, b.unreachable, b.invalid = bj.Empty, bj.Unreachable, bj.Invalid
			b.calls.list = bj.CallPoints
			ld.branches = append(ld.branches, b)
		}
		if lj.Count != 0 {
			fresh.counts.Add(lj.Line, lj.Count)
		}
	}

	p.mu.Lock()
	p.lines, p.lastLine, p.counts = fresh.lines, fresh.lastLine, fresh.counts
	p.mu.Unlock()
	p.dirty.Store(true)
	return nil
}
