package lines

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters_GrowKeepsCounts(t *testing.T) {
	c := NewCounters(4)
	assert.Equal(t, int64(0), c.Inc(3))
	assert.Equal(t, int64(1), c.Inc(3))

	c.Grow(100)
	assert.GreaterOrEqual(t, c.Len(), 100)
	assert.Equal(t, int64(2), c.Get(3))

	// indexes beyond the array grow it on demand
	assert.Equal(t, int64(0), c.Inc(500))
	assert.Equal(t, int64(1), c.Get(500))
	assert.Equal(t, int64(0), c.Get(-1))
	assert.Equal(t, int64(0), c.Get(10_000))
}

func TestCounters_ConcurrentIncrementsDuringGrowth(t *testing.T) {
	c := NewCounters(1)
	const goroutines, perG = 8, 2000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				c.Inc(1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 2; n < 2000; n += 7 {
			c.Grow(n)
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(goroutines*perG), c.Get(1))
}

func TestLineData_SimpleLine(t *testing.T) {
	p := NewPerFileLines()
	p.AddLine(3)
	p.AddLine(4)

	assert.Equal(t, 2, p.TotalItems())
	assert.Equal(t, 0, p.CoveredItems())
	assert.Equal(t, 0, p.CoveragePercentage())

	assert.Equal(t, int64(0), p.RegisterExecution(3, ""))
	assert.Equal(t, int64(1), p.RegisterExecution(3, ""))
	assert.Equal(t, 1, p.CoveredItems())
	assert.Equal(t, 50, p.CoveragePercentage())
	assert.Equal(t, int64(2), p.ExecutionCount(3))
	assert.Equal(t, int64(-1), p.ExecutionCount(9))
	assert.Equal(t, []int{3}, p.CoveredLines())
}

func TestLineData_SameLineConditional(t *testing.T) {
	// x = c ? a : b;  jump target on the same line, with code there
	p := NewPerFileLines()
	src := p.AddBranchingPoint(5, 5)
	require.Equal(t, 0, src)

	ld, ok := p.LineData(5)
	require.True(t, ok)
	// line + same-line target + non-empty target
	assert.Equal(t, 3, ld.Segments())
	assert.Equal(t, 2, ld.BranchingSourcesAndTargets())

	p.RegisterExecution(5, "")
	_, err := p.RegisterBranchExecution(5, src, "")
	require.NoError(t, err)
	assert.Equal(t, 2, ld.CoveredSegments())
	assert.Equal(t, 1, ld.CoveredBranchingSourcesAndTargets())

	_, err = p.RegisterBranchExecution(5, src+1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, ld.CoveredSegments())
	assert.Equal(t, 100, p.CoveragePercentage())
	assert.Equal(t, 100, p.Branches().CoveragePercentage())
}

func TestLineData_TargetOnLaterLine(t *testing.T) {
	// if (c) {  target on line 9, fall-through has no code on line 7
	p := NewPerFileLines()
	src := p.AddBranchingPoint(7, 9)
	p.MarkLastLineSegmentAsEmpty(7)
	ld, _ := p.LineData(7)

	assert.Equal(t, 1, ld.Segments())
	p.RegisterExecution(7, "")
	assert.Equal(t, 1, ld.CoveredSegments())

	// the branch metric still sees both sides
	assert.Equal(t, 2, ld.BranchingSourcesAndTargets())
	p.RegisterBranchExecution(7, src, "")
	p.RegisterBranchExecution(7, src+1, "")
	assert.Equal(t, 2, ld.CoveredBranchingSourcesAndTargets())
}

func TestLineData_UnresolvedTargetIgnoredForSegments(t *testing.T) {
	p := NewPerFileLines()
	src := p.AddBranchingPoint(2, 0)
	ld, _ := p.LineData(2)
	assert.Equal(t, 1, ld.Segments())

	ld.Branch(src + 1).SetLine(2)
	assert.Equal(t, 3, ld.Segments())
}

func TestLineData_SwitchTargets(t *testing.T) {
	p := NewPerFileLines()
	var targets []int
	for _, line := range []int{3, 4, 5} {
		targets = append(targets, p.AddSwitchTarget(2, line))
	}
	ld, _ := p.LineData(2)
	assert.Equal(t, 3, ld.BranchingSourcesAndTargets())
	assert.Equal(t, 4, ld.Segments())

	p.RegisterExecution(2, "")
	for _, idx := range targets {
		_, err := p.RegisterBranchExecution(2, idx, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 100, p.Branches().CoveragePercentage())
	assert.Equal(t, 4, ld.CoveredSegments())
}

func TestLineData_UnreachableCountsAsCovered(t *testing.T) {
	p := NewPerFileLines()
	src := p.AddBranchingPoint(4, 4)
	ld, _ := p.LineData(4)
	ld.Branch(src + 1).MarkUnreachable()

	p.RegisterExecution(4, "")
	p.RegisterBranchExecution(4, src, "")
	assert.Equal(t, ld.Segments(), ld.CoveredSegments())

	ld.MarkUnreachable()
	p2 := NewPerFileLines()
	p2.AddLine(1).MarkUnreachable()
	assert.Equal(t, 100, p2.CoveragePercentage())
	p2.MarkLineAsReachable(1)
	assert.Equal(t, 0, p2.CoveragePercentage())
}

func TestPerFileLines_InvalidBranch(t *testing.T) {
	p := NewPerFileLines()
	src := p.AddBranchingPoint(6, 6)
	ld, _ := p.LineData(6)
	ld.InvalidateBranch(src)

	assert.False(t, p.HasValidBranch(6, src))
	assert.False(t, p.HasValidBranch(6, 8))
	assert.False(t, p.HasValidBranch(1, 0))

	prev, err := p.RegisterBranchExecution(6, src, "")
	assert.Equal(t, int64(-1), prev)
	assert.ErrorIs(t, err, ErrInvalidBranch)
	assert.Equal(t, 1, ld.Segments())
}

func TestPerFileLines_CallPoints(t *testing.T) {
	p := NewPerFileLines()
	ld := p.AddLine(1)

	for i := 0; i < MaxCallPoints+5; i++ {
		p.RegisterExecution(1, fmt.Sprintf("TestCase%d", i))
	}
	p.RegisterExecution(1, "TestCase0")

	cps := ld.CallPoints()
	assert.Len(t, cps, MaxCallPoints)
	assert.Equal(t, CallPoint{Test: "TestCase0", Repetitions: 2}, cps[0])
	assert.False(t, ld.AcceptsAdditionalCallPoints())
	assert.Equal(t, int64(MaxCallPoints+6), p.ExecutionCount(1))
}

func TestPerFileLines_ConcurrentRegistration(t *testing.T) {
	p := NewPerFileLines()
	p.AddLine(1)
	const goroutines, perG = 12, 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				p.RegisterExecution(1, "")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := 2; line < 400; line++ {
			p.AddLine(line)
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(goroutines*perG), p.ExecutionCount(1))
	assert.Equal(t, 399, p.LastLine())
	assert.Equal(t, 399, p.ExecutableLineCount())
}

func TestPerFileLines_Merge(t *testing.T) {
	prev := NewPerFileLines()
	prev.AddLine(1)
	src := prev.AddBranchingPoint(2, 2)
	prev.AddLine(8)
	prev.RegisterExecution(1, "")
	prev.RegisterExecution(2, "")
	prev.RegisterBranchExecution(2, src, "")
	prev.RegisterExecution(8, "")

	cur := NewPerFileLines()
	cur.AddLine(1)
	cur.AddBranchingPoint(2, 2)
	cur.RegisterExecution(1, "")
	assert.Equal(t, 1, cur.CoveredItems())

	cur.Merge(prev)
	assert.Equal(t, int64(2), cur.ExecutionCount(1))
	assert.Equal(t, int64(1), cur.ExecutionCount(2))
	assert.Equal(t, int64(1), cur.ExecutionCount(8))
	ld, _ := cur.LineData(2)
	assert.Equal(t, int64(1), ld.Branch(src).ExecutionCount())
	assert.Equal(t, 8, cur.LastLine())
	// 1 + 3 + 1 segments, target on line 2 not taken
	assert.Equal(t, 5, cur.TotalItems())
	assert.Equal(t, 4, cur.CoveredItems())

	// not idempotent
	cur.Merge(prev)
	assert.Equal(t, int64(3), cur.ExecutionCount(1))
}

func TestPerFileLines_JSONRoundTrip(t *testing.T) {
	p := NewPerFileLines()
	src := p.AddBranchingPoint(3, 3)
	p.AddSwitchTarget(5, 6)
	p.MarkLastLineSegmentAsEmpty(5)
	p.RegisterExecution(3, "TestA")
	p.RegisterBranchExecution(3, src+1, "TestB")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	restored := NewPerFileLines()
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, p.Lines(), restored.Lines())
	assert.Equal(t, p.TotalItems(), restored.TotalItems())
	assert.Equal(t, p.CoveredItems(), restored.CoveredItems())
	assert.Equal(t, p.Branches().TotalItems(), restored.Branches().TotalItems())
	ld, _ := restored.LineData(3)
	assert.Equal(t, []CallPoint{{Test: "TestB", Repetitions: 1}}, ld.Branch(src+1).CallPoints())
	assert.Equal(t, []CallPoint{{Test: "TestA", Repetitions: 1}}, ld.CallPoints())

	// counts keep accumulating after restore
	assert.Equal(t, int64(1), restored.RegisterExecution(3, ""))
}
