package lines

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/atomic"

	"github.com/zjy-dev/pathcov/internal/metric"
)

// ErrInvalidBranch is returned for registrations against a branch that does
// not exist or was invalidated.
var ErrInvalidBranch = errors.New("invalid branch")

// PerFileLines holds the line and branch data of one source file.
//
// Lines and branches are added while the file is instrumented; counts are
// updated concurrently by the running code afterwards.
type PerFileLines struct {
	mu       sync.RWMutex
	lines    map[int]*LineData
	lastLine int
	counts   *Counters

	dirty           atomic.Bool
	totalSegments   int
	coveredSegments int
	totalBranches   int
	coveredBranches int
}

var _ metric.PerFileCoverage = (*PerFileLines)(nil)

// NewPerFileLines returns empty line data.
func NewPerFileLines() *PerFileLines {
	p := &PerFileLines{
		lines:  make(map[int]*LineData),
		counts: NewCounters(0),
	}
	p.dirty.Store(true)
	return p
}

// AddLine registers an executable line and returns its data. Adding a line
// beyond the current counter array grows it.
func (p *PerFileLines) AddLine(line int) *LineData {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.dirty.Store(true)
	return p.addLineLocked(line)
}

func (p *PerFileLines) addLineLocked(line int) *LineData {
	if ld, ok := p.lines[line]; ok {
		return ld
	}
	p.counts.Grow(line + 1)
	ld := &LineData{line: line, count: p.counts.slot(line)}
	p.lines[line] = ld
	if line > p.lastLine {
		p.lastLine = line
	}
	return ld
}

// LineData returns the data of an executable line.
func (p *PerFileLines) LineData(line int) (*LineData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ld, ok := p.lines[line]
	return ld, ok
}

// AddBranchingPoint adds a conditional jump from line to targetLine and
// returns the source branch index.
func (p *PerFileLines) AddBranchingPoint(line, targetLine int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.dirty.Store(true)
	return p.addLineLocked(line).AddBranchingPoint(targetLine)
}

// AddSwitchTarget adds one multi-way jump edge from line to targetLine and
// returns the target branch index.
func (p *PerFileLines) AddSwitchTarget(line, targetLine int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.dirty.Store(true)
	return p.addLineLocked(line).AddSwitchTarget(targetLine)
}

// ResolveBranchTarget sets the line of a forward jump target once its label
// is known. It fails when the branch does not exist.
func (p *PerFileLines) ResolveBranchTarget(line, index, targetLine int) error {
	ld, ok := p.LineData(line)
	if !ok || ld.Branch(index) == nil {
		return fmt.Errorf("line %d branch %d: %w", line, index, ErrInvalidBranch)
	}
	p.mu.Lock()
	ld.branches[index].SetLine(targetLine)
	p.mu.Unlock()
	p.dirty.Store(true)
	return nil
}

// MarkLastLineSegmentAsEmpty flags the last branch target added on line as
// having no code there.
func (p *PerFileLines) MarkLastLineSegmentAsEmpty(line int) {
	if ld, ok := p.LineData(line); ok {
		ld.MarkLastSegmentEmpty()
		p.dirty.Store(true)
	}
}

// MarkLineAsReachable clears an unreachable flag on line.
func (p *PerFileLines) MarkLineAsReachable(line int) {
	if ld, ok := p.LineData(line); ok {
		ld.MarkReachable()
		p.dirty.Store(true)
	}
}

// RegisterExecution counts one execution of line, recording test as a call
// point when non-empty. It returns the previous count.
func (p *PerFileLines) RegisterExecution(line int, test string) int64 {
	prev := p.counts.Inc(line)
	if prev == 0 {
		p.dirty.Store(true)
	}
	if test != "" {
		if ld, ok := p.LineData(line); ok {
			ld.calls.add(test)
		}
	}
	return prev
}

// HasValidBranch reports whether branch index exists on line and has not
// been invalidated.
func (p *PerFileLines) HasValidBranch(line, index int) bool {
	ld, ok := p.LineData(line)
	return ok && ld.validBranch(index)
}

// RegisterBranchExecution counts one execution of a branch and returns its
// previous count.
func (p *PerFileLines) RegisterBranchExecution(line, index int, test string) (int64, error) {
	ld, ok := p.LineData(line)
	if !ok || !ld.validBranch(index) {
		return -1, fmt.Errorf("line %d branch %d: %w", line, index, ErrInvalidBranch)
	}
	prev := ld.branches[index].register(test)
	if prev == 0 {
		p.dirty.Store(true)
	}
	return prev, nil
}

// ExecutionCount returns the count of line, or -1 when the line was never
// added.
func (p *PerFileLines) ExecutionCount(line int) int64 {
	if _, ok := p.LineData(line); !ok {
		return -1
	}
	return p.counts.Get(line)
}

// LastLine is the highest executable line.
func (p *PerFileLines) LastLine() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastLine
}

// ExecutableLineCount is the number of executable lines.
func (p *PerFileLines) ExecutableLineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lines)
}

// Lines returns the executable line numbers in ascending order.
func (p *PerFileLines) Lines() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int, 0, len(p.lines))
	for l := range p.lines {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// CoveredLines returns the executable lines that are covered, ascending.
func (p *PerFileLines) CoveredLines() []int {
	var out []int
	for _, l := range p.Lines() {
		if ld, ok := p.LineData(l); ok && ld.Covered() {
			out = append(out, l)
		}
	}
	return out
}

// Segments returns the number of coverable segments on line, or 0 when the
// line is not executable.
func (p *PerFileLines) Segments(line int) int {
	ld, ok := p.LineData(line)
	if !ok {
		return 0
	}
	return ld.Segments()
}

func (p *PerFileLines) refresh() {
	if !p.dirty.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty.Swap(false) {
		return
	}
	p.totalSegments, p.coveredSegments = 0, 0
	p.totalBranches, p.coveredBranches = 0, 0
	for _, ld := range p.lines {
		p.totalSegments += ld.Segments()
		p.coveredSegments += ld.CoveredSegments()
		p.totalBranches += ld.BranchingSourcesAndTargets()
		p.coveredBranches += ld.CoveredBranchingSourcesAndTargets()
	}
}

// TotalItems is the number of line segments in the file.
func (p *PerFileLines) TotalItems() int {
	p.refresh()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalSegments
}

// CoveredItems is the number of covered line segments.
func (p *PerFileLines) CoveredItems() int {
	p.refresh()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coveredSegments
}

// CoveragePercentage is the file's line segment coverage.
func (p *PerFileLines) CoveragePercentage() int {
	return metric.Percentage(p.CoveredItems(), p.TotalItems())
}

// BranchCoverage is the branch-metric view of a file's line data.
type BranchCoverage struct {
	p *PerFileLines
}

var _ metric.PerFileCoverage = BranchCoverage{}

// Branches returns the branch-metric view of p.
func (p *PerFileLines) Branches() BranchCoverage { return BranchCoverage{p: p} }

func (b BranchCoverage) TotalItems() int {
	b.p.refresh()
	b.p.mu.RLock()
	defer b.p.mu.RUnlock()
	return b.p.totalBranches
}

func (b BranchCoverage) CoveredItems() int {
	b.p.refresh()
	b.p.mu.RLock()
	defer b.p.mu.RUnlock()
	return b.p.coveredBranches
}

func (b BranchCoverage) CoveragePercentage() int {
	return metric.Percentage(b.CoveredItems(), b.TotalItems())
}

// Merge folds prev, the same file's data from an earlier run, into p. Lines
// present in both have their counts summed; lines only in prev are carried
// over with their counts.
func (p *PerFileLines) Merge(prev *PerFileLines) {
	if prev == nil || prev == p {
		return
	}
	prevLines := prev.Lines()

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.dirty.Store(true)

	for _, line := range prevLines {
		pld, _ := prev.LineData(line)
		count := prev.counts.Get(line)

		ld, ok := p.lines[line]
		if ok {
			ld.addCountsFromPreviousRun(pld)
		} else {
			ld = p.addLineLocked(line)
			ld.unreachable = pld.unreachable
			for _, pb := range pld.branches {
				ld.branches = append(ld.branches, pb.clone())
			}
			ld.calls.merge(pld.calls.snapshot())
		}
		if count != 0 {
			p.counts.Add(line, count)
		}
	}
}
