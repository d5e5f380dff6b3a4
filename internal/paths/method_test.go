package paths

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMethod(t *testing.T, name string, events func(b *Builder), lastLine int) *MethodData {
	t.Helper()
	g, err := Build(events)
	require.NoError(t, err)
	return NewMethodData(name, g, lastLine)
}

func assertPaths(t *testing.T, m *MethodData, total, covered int, executions int64) {
	t.Helper()
	assert.Equal(t, total, m.TotalPaths(), "total paths")
	assert.Equal(t, covered, m.CoveredPaths(), "covered paths")
	assert.Equal(t, executions, m.ExecutionCount(), "executions")
}

func TestMethodData_RegisterPathExecution(t *testing.T) {
	m := newMethod(t, "check", ifElse, 8)
	assertPaths(t, m, 2, 0, 0)

	assert.Equal(t, int64(0), m.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7}))
	assert.Equal(t, int64(1), m.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7}))
	assertPaths(t, m, 2, 1, 2)

	assert.Equal(t, int64(0), m.RegisterPathExecution([]int{0, 1, 3, 4, 5, 6, 7}))
	assertPaths(t, m, 2, 2, 3)
}

func TestMethodData_UnmatchedSequences(t *testing.T) {
	m := newMethod(t, "check", ifElse, 8)

	for _, seq := range [][]int{
		nil,
		{0},
		{0, 1, 2, 5, 6},       // does not end at an Exit
		{0, 1, 2, 3, 5, 6, 7}, // mixes both arms
		{0, 1, 2, 5, 6, 99},   // out of range
	} {
		assert.Equal(t, int64(-1), m.RegisterPathExecution(seq), "seq %v", seq)
	}
	assertPaths(t, m, 2, 0, 0)
}

func TestMethodData_StraightLineFullCoverage(t *testing.T) {
	m := newMethod(t, "run", func(b *Builder) {
		b.OnEntry(10)
		b.OnInstruction(11, OpOther)
		b.OnExit(12)
	}, 12)
	assert.Equal(t, 10, m.FirstLine)

	const n = 5
	for i := 0; i < n; i++ {
		m.RegisterPathExecution([]int{0, 1})
	}
	assertPaths(t, m, 1, 1, n)
}

func TestMethodData_ShadowedPathCountsForPartner(t *testing.T) {
	m := newMethod(t, "isSet", trivialTernary, 3)
	assertPaths(t, m, 1, 0, 0)
	require.Len(t, m.AllPaths(), 2)

	// only the false arm runs
	assert.Equal(t, int64(0), m.RegisterPathExecution([]int{0, 1, 3, 4, 5, 6, 7}))
	assertPaths(t, m, 1, 1, 1)

	m.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7})
	assertPaths(t, m, 1, 1, 2)
	assert.Equal(t, int64(1), m.Paths()[0].OwnCount())
}

func TestMethodData_ConcurrentExecutions(t *testing.T) {
	m := newMethod(t, "loop", whileLoop, 4)

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			seq := []int{0, 1, 2, 3, 4}
			if w%2 == 0 {
				seq = []int{0, 1, 3, 4}
			}
			for i := 0; i < perWorker; i++ {
				m.RegisterPathExecution(seq)
			}
		}(w)
	}
	wg.Wait()

	assertPaths(t, m, 2, 2, workers*perWorker)
	for _, p := range m.Paths() {
		assert.Equal(t, int64(workers/2*perWorker), p.ExecutionCount())
	}
}

func TestTrace_MarkReached(t *testing.T) {
	m := newMethod(t, "loop", whileLoop, 4)
	tr := m.NewTrace()

	// two loop iterations: 0 1 2 (back to 1) 2 3 4
	for _, idx := range []int{0, 1, 2, 1, 2, 3} {
		assert.Equal(t, int64(-1), tr.MarkReached(idx))
	}
	assert.Equal(t, []int{0, 1, 2, 3}, tr.Reached())
	assert.Equal(t, int64(0), tr.MarkReached(4))

	// a new execution resets the trace
	tr.MarkReached(0)
	tr.MarkReached(1)
	tr.MarkReached(3)
	assert.Equal(t, int64(0), tr.MarkReached(4))
	assertPaths(t, m, 2, 2, 2)
}

func TestTrace_IgnoresNodesOutsideGraph(t *testing.T) {
	m := newMethod(t, "loop", whileLoop, 4)
	tr := m.NewTrace()

	for _, idx := range []int{0, 1, 2, 99, -3, 3} {
		assert.Equal(t, int64(-1), tr.MarkReached(idx))
	}
	assert.Equal(t, []int{0, 1, 2, 3}, tr.Reached())
	assert.Equal(t, int64(0), tr.MarkReached(4))
	assertPaths(t, m, 2, 1, 1)
}

func TestPerFilePaths_MergeCopiesCarriedMethods(t *testing.T) {
	prev := NewPerFilePaths()
	prevA := newMethod(t, "a", ifThen, 4)
	prevA.RegisterPathExecution([]int{0, 1, 3, 4, 5})
	prev.AddMethod(prevA)

	file := NewPerFilePaths()
	require.NoError(t, file.Merge(prev))
	require.NoError(t, file.Merge(prev))

	a, ok := file.Method(1)
	require.True(t, ok)
	assert.NotSame(t, prevA, a)
	assertPaths(t, a, 2, 1, 2)

	file.RegisterExecution(1, []int{0, 1, 3, 4, 5})
	assertPaths(t, prevA, 2, 1, 1)
	assert.Equal(t, 1, prev.CoveredItems())
	assert.Equal(t, 1, file.CoveredItems())
}

func TestMethodData_AddCountsFromPreviousRun(t *testing.T) {
	prev := newMethod(t, "check", ifElse, 8)
	cur := newMethod(t, "check", ifElse, 8)

	prev.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7})
	prev.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7})
	cur.RegisterPathExecution([]int{0, 1, 3, 4, 5, 6, 7})

	require.NoError(t, cur.AddCountsFromPreviousRun(prev))
	assertPaths(t, cur, 2, 2, 3)

	// merging the same data again adds it again
	require.NoError(t, cur.AddCountsFromPreviousRun(prev))
	assertPaths(t, cur, 2, 2, 5)
}

func TestMethodData_AddCountsShapeMismatch(t *testing.T) {
	prev := newMethod(t, "check", ifThen, 4)
	cur := newMethod(t, "check", switchTwoCases, 5)

	err := cur.AddCountsFromPreviousRun(prev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestPerFilePaths_TotalsAndMerge(t *testing.T) {
	file := NewPerFilePaths()
	file.AddMethod(newMethod(t, "a", ifThen, 4))
	file.AddMethod(newMethod(t, "b", func(b *Builder) {
		b.OnEntry(10)
		b.OnExit(11)
	}, 11))

	assert.Equal(t, 3, file.TotalItems())
	assert.Equal(t, 0, file.CoveredItems())
	assert.Equal(t, 0, file.CoveragePercentage())

	assert.Equal(t, int64(0), file.RegisterExecution(10, []int{0, 1}))
	assert.Equal(t, int64(-1), file.RegisterExecution(99, []int{0, 1}))
	assert.Equal(t, 1, file.CoveredItems())
	assert.Equal(t, 33, file.CoveragePercentage())

	prev := NewPerFilePaths()
	prevA := newMethod(t, "a", ifThen, 4)
	prevA.RegisterPathExecution([]int{0, 1, 3, 4, 5})
	prev.AddMethod(prevA)
	prev.AddMethod(newMethod(t, "c", func(b *Builder) {
		b.OnEntry(20)
		b.OnExit(21)
	}, 21))

	require.NoError(t, file.Merge(prev))
	assert.Equal(t, 4, file.TotalItems())
	assert.Equal(t, 2, file.CoveredItems())
	assert.Equal(t, 50, file.CoveragePercentage())

	lines := []int{}
	for _, m := range file.Methods() {
		lines = append(lines, m.FirstLine)
	}
	assert.Equal(t, []int{1, 10, 20}, lines)
}

func TestPerFilePaths_CacheInvalidatedByTrace(t *testing.T) {
	file := NewPerFilePaths()
	m := newMethod(t, "a", ifThen, 4)
	file.AddMethod(m)
	assert.Equal(t, 0, file.CoveredItems())

	tr := m.NewTrace()
	for _, idx := range []int{0, 1, 2, 3, 4, 5} {
		tr.MarkReached(idx)
	}
	assert.Equal(t, 1, file.CoveredItems())
}

func TestMethodData_JSONRoundTrip(t *testing.T) {
	file := NewPerFilePaths()
	m := newMethod(t, "isSet", trivialTernary, 3)
	m.RegisterPathExecution([]int{0, 1, 3, 4, 5, 6, 7})
	m.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7})
	file.AddMethod(m)

	data, err := json.Marshal(file)
	require.NoError(t, err)

	restored := NewPerFilePaths()
	require.NoError(t, json.Unmarshal(data, restored))

	rm, ok := restored.Method(1)
	require.True(t, ok)
	assert.Equal(t, "isSet", rm.Name)
	assert.Equal(t, 3, rm.LastLine)
	assertPaths(t, rm, 1, 1, 2)
	assert.True(t, rm.Graph().Node(3).FromTrivialFork)

	// restored methods keep counting
	assert.Equal(t, int64(1), rm.RegisterPathExecution([]int{0, 1, 2, 5, 6, 7}))
}

func TestMethodData_UnmarshalRejectsForeignPaths(t *testing.T) {
	m := newMethod(t, "check", ifThen, 4)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["paths"].([]interface{})[0].(map[string]interface{})["nodes"] = []int{0, 1, 2}
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	var restored MethodData
	err = json.Unmarshal(tampered, &restored)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
