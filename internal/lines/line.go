package lines

import "go.uber.org/atomic"

// LineData is the static branch structure and runtime state of one
// executable line. Branches come in pairs: an even index is a jump source
// (the fall-through side of a conditional jump) and the following odd index
// is its target. Pairs added by AddSwitchTarget have an empty source.
type LineData struct {
	line        int
	count       *atomic.Int64
	unreachable bool
	branches    []*BranchData
	calls       callPoints
}

// Line returns the line number.
func (l *LineData) Line() int { return l.line }

// ExecutionCount returns how often the line ran.
func (l *LineData) ExecutionCount() int64 { return l.count.Load() }

// MarkUnreachable flags the line as never expected to run.
func (l *LineData) MarkUnreachable() { l.unreachable = true }

// MarkReachable clears a previous MarkUnreachable.
func (l *LineData) MarkReachable() { l.unreachable = false }

// Covered reports whether the line itself counts as covered.
func (l *LineData) Covered() bool {
	return l.unreachable || l.count.Load() > 0
}

// CallPoints returns the tests recorded as reaching the line.
func (l *LineData) CallPoints() []CallPoint { return l.calls.snapshot() }

// AcceptsAdditionalCallPoints reports whether another distinct call point
// would still be kept.
func (l *LineData) AcceptsAdditionalCallPoints() bool { return l.calls.acceptsMore() }

// AddBranchingPoint adds a conditional jump on this line whose target is on
// targetLine (0 if not yet known). It returns the source branch index; the
// target is at the index after it.
func (l *LineData) AddBranchingPoint(targetLine int) int {
	idx := len(l.branches)
	l.branches = append(l.branches, newBranch(l.line), newBranch(targetLine))
	return idx
}

// AddSwitchTarget adds one edge of a multi-way jump on this line. Only the
// target side is executed, so the source is empty. It returns the target
// branch index.
func (l *LineData) AddSwitchTarget(targetLine int) int {
	src := newBranch(l.line)
	src.empty = true
	l.branches = append(l.branches, src, newBranch(targetLine))
	return len(l.branches) - 1
}

// InvalidateBranch withdraws a branch pair, for jumps the instrumenter
// decided not to track. Registrations against it are ignored.
func (l *LineData) InvalidateBranch(sourceIndex int) {
	if sourceIndex < 0 || sourceIndex+1 >= len(l.branches) {
		return
	}
	l.branches[sourceIndex].invalid = true
	l.branches[sourceIndex+1].invalid = true
}

// MarkLastSegmentEmpty flags the most recently added target as having no
// code on this line.
func (l *LineData) MarkLastSegmentEmpty() {
	if n := len(l.branches); n > 0 {
		l.branches[n-1].MarkEmpty()
	}
}

// ContainsBranches reports whether the line has branching points.
func (l *LineData) ContainsBranches() bool { return len(l.branches) > 0 }

// Branches returns the branch list. The caller must not modify it.
func (l *LineData) Branches() []*BranchData { return l.branches }

// Branch returns branch i, or nil when out of range.
func (l *LineData) Branch(i int) *BranchData {
	if i < 0 || i >= len(l.branches) {
		return nil
	}
	return l.branches[i]
}

func (l *LineData) validBranch(i int) bool {
	b := l.Branch(i)
	return b != nil && !b.invalid
}

func switchEdge(src *BranchData) bool {
	return src.empty
}

// Segments returns the number of coverable segments on the line: the line
// itself, plus for each conditional jump one segment when the target is on
// the same line and one when the target has code, plus one per multi-way
// target.
func (l *LineData) Segments() int {
	count := 1
	for i := 0; i+1 < len(l.branches); i += 2 {
		src, tgt := l.branches[i], l.branches[i+1]
		if src.invalid || tgt.line <= 0 {
			continue
		}
		if switchEdge(src) {
			count++
			continue
		}
		if tgt.line == src.line {
			count++
		}
		if !tgt.empty {
			count++
		}
	}
	return count
}

// CoveredSegments returns how many of the line's segments are covered.
func (l *LineData) CoveredSegments() int {
	covered := 0
	if l.Covered() {
		covered = 1
	}
	for i := 0; i+1 < len(l.branches); i += 2 {
		src, tgt := l.branches[i], l.branches[i+1]
		if src.invalid || tgt.line <= 0 {
			continue
		}
		if switchEdge(src) {
			if tgt.Covered() {
				covered++
			}
			continue
		}
		if src.Covered() && !tgt.empty {
			covered++
		}
		if tgt.Covered() && tgt.line == src.line {
			covered++
		}
	}
	return covered
}

// BranchingSourcesAndTargets counts the branch metric items on the line:
// every non-empty source and every target.
func (l *LineData) BranchingSourcesAndTargets() int {
	count := 0
	for i := 0; i+1 < len(l.branches); i += 2 {
		if l.branches[i].invalid {
			continue
		}
		if !l.branches[i].empty {
			count++
		}
		count++
	}
	return count
}

// CoveredBranchingSourcesAndTargets counts the covered branch metric items.
func (l *LineData) CoveredBranchingSourcesAndTargets() int {
	covered := 0
	for i := 0; i+1 < len(l.branches); i += 2 {
		src, tgt := l.branches[i], l.branches[i+1]
		if src.invalid {
			continue
		}
		if src.Covered() {
			covered++
		}
		if tgt.reached() {
			covered++
		}
	}
	return covered
}

// addCountsFromPreviousRun adds branch counts and call points from prev.
// Branches are matched by position when both lines have the same number.
func (l *LineData) addCountsFromPreviousRun(prev *LineData) {
	l.calls.merge(prev.calls.snapshot())
	if len(prev.branches) != len(l.branches) {
		return
	}
	for i, b := range l.branches {
		p := prev.branches[i]
		b.count.Add(p.count.Load())
		b.calls.merge(p.calls.snapshot())
	}
}
