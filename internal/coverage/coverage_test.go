package coverage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/pathcov/internal/metric"
	"github.com/zjy-dev/pathcov/internal/paths"
)

// ifThen is "if (c) { x }" spanning lines 1-5: two paths, the taken jump
// skips line 3.
func ifThen(b *paths.Builder) {
	b.OnEntry(1)
	b.OnConditionalJump("skip", 2)
	b.OnInstruction(3, paths.OpOther)
	b.OnJumpTarget("skip", 4)
	b.OnExit(5)
}

var (
	throughThen = []int{0, 1, 2, 3, 4}
	skipThen    = []int{0, 1, 3, 4}
)

// addFile registers lines 2, 3 and 5 of path plus the ifThen method.
func addFile(t *testing.T, d *Data, path string, stamp int64) *FileData {
	t.Helper()
	f := d.GetOrAddFile(path)
	f.LastModified = stamp
	for _, l := range []int{2, 3, 5} {
		f.Lines.AddLine(l)
	}
	g, err := paths.Build(ifThen)
	require.NoError(t, err)
	f.Paths.AddMethod(paths.NewMethodData("run", g, 5))
	return f
}

func coveredPaths(d *Data) int {
	covered, _ := d.Totals(metric.Path, "")
	return covered
}

func TestData_GetOrAddFileAssignsIndexes(t *testing.T) {
	d := NewData()
	a := d.GetOrAddFile("a.go")
	b := d.GetOrAddFile("b.go")
	assert.Same(t, a, d.GetOrAddFile("a.go"))
	assert.Equal(t, 0, a.Index)
	assert.Equal(t, 1, b.Index)

	got, ok := d.FileByIndex(1)
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = d.FileByIndex(2)
	assert.False(t, ok)

	// empty files are not reported
	assert.Empty(t, d.Files())
}

func TestData_PercentagesAndPrefixes(t *testing.T) {
	d := NewData()
	a := addFile(t, d, "pkg/a.go", 1)
	b := d.GetOrAddFile("other/b.go")
	b.Lines.AddLine(1)

	a.Lines.RegisterExecution(2, "")
	a.Lines.RegisterExecution(5, "")
	a.Paths.RegisterExecution(1, throughThen)
	b.Lines.RegisterExecution(1, "")

	covered, total := d.Totals(metric.Line, "")
	assert.Equal(t, 3, covered)
	assert.Equal(t, 4, total)
	assert.Equal(t, 75, d.Percentage(metric.Line, ""))
	assert.Equal(t, 66, d.Percentage(metric.Line, "pkg/"))
	assert.Equal(t, 100, d.Percentage(metric.Line, "other/"))
	assert.Equal(t, metric.NotApplicable, d.Percentage(metric.Line, "missing/"))

	assert.Equal(t, 50, d.Percentage(metric.Path, ""))
	assert.Equal(t, 66, d.SmallestPerFilePercentage(metric.Line))
	assert.Equal(t, 50, d.SmallestPerFilePercentage(metric.Path))
	assert.Equal(t, metric.NotApplicable, d.SmallestPerFilePercentage(metric.Branch))

	files := d.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "other/b.go", files[0].Path)
}

func TestData_Merge(t *testing.T) {
	run := func(stamp int64, lineHits int, through bool) *Data {
		d := NewData()
		f := addFile(t, d, "a.go", stamp)
		for i := 0; i < lineHits; i++ {
			f.Lines.RegisterExecution(2, "")
		}
		if through {
			f.Paths.RegisterExecution(1, throughThen)
		}
		return d
	}
	count := func(d *Data) int64 {
		f, ok := d.File("a.go")
		require.True(t, ok)
		return f.Lines.ExecutionCount(2)
	}

	t.Run("same stamp sums counts", func(t *testing.T) {
		cur, prev := run(7, 1, false), run(7, 2, true)
		require.NoError(t, cur.Merge(prev))
		assert.Equal(t, int64(3), count(cur))
		assert.Equal(t, 1, coveredPaths(cur))
	})

	t.Run("different stamp keeps current", func(t *testing.T) {
		cur, prev := run(8, 1, false), run(7, 2, true)
		require.NoError(t, cur.Merge(prev))
		assert.Equal(t, int64(1), count(cur))
		assert.Equal(t, 0, coveredPaths(cur))
	})

	t.Run("unknown stamp keeps current", func(t *testing.T) {
		cur, prev := run(0, 1, false), run(0, 2, false)
		require.NoError(t, cur.Merge(prev))
		assert.Equal(t, int64(1), count(cur))
	})

	t.Run("files only in the earlier run are added", func(t *testing.T) {
		cur := run(7, 1, false)
		prev := NewData()
		only := prev.GetOrAddFile("b.go")
		only.Lines.AddLine(4)
		only.Lines.RegisterExecution(4, "")
		prev.SetWithCallPoints(true)

		require.NoError(t, cur.Merge(prev))
		f, ok := cur.File("b.go")
		require.True(t, ok)
		assert.Equal(t, 1, f.Index)
		assert.Equal(t, int64(1), f.Lines.ExecutionCount(4))
		assert.True(t, cur.WithCallPoints())
	})

	t.Run("files only in the earlier run are copied", func(t *testing.T) {
		cur := NewData()
		cur.GetOrAddFile("other.go").Lines.AddLine(1)
		prev := NewData()
		b := addFile(t, prev, "b.go", 7)
		b.Lines.RegisterExecution(2, "")
		b.Lines.RegisterExecution(2, "")
		require.GreaterOrEqual(t, b.Paths.RegisterExecution(1, throughThen), int64(0))

		require.NoError(t, cur.Merge(prev))
		require.NoError(t, cur.Merge(prev))

		f, ok := cur.File("b.go")
		require.True(t, ok)
		assert.NotSame(t, b, f)
		assert.Equal(t, int64(4), f.Lines.ExecutionCount(2))
		m, ok := f.Paths.Method(1)
		require.True(t, ok)
		assert.Equal(t, int64(2), m.ExecutionCount())

		f.Lines.RegisterExecution(2, "")
		f.Paths.RegisterExecution(1, skipThen)
		assert.Equal(t, int64(2), b.Lines.ExecutionCount(2))
		assert.Equal(t, 0, b.Index)
		assert.Equal(t, 1, b.Paths.CoveredItems())
		assert.Equal(t, 2, f.Paths.CoveredItems())
	})

	t.Run("merging twice adds twice", func(t *testing.T) {
		cur, prev := run(7, 1, false), run(7, 2, false)
		require.NoError(t, cur.Merge(prev))
		require.NoError(t, cur.Merge(prev))
		assert.Equal(t, int64(5), count(cur))
	})
}

func TestData_MergeReportsChangedMethods(t *testing.T) {
	cur := NewData()
	addFile(t, cur, "a.go", 3)

	prev := NewData()
	pf := prev.GetOrAddFile("a.go")
	pf.LastModified = 3
	g, err := paths.Build(func(b *paths.Builder) {
		b.OnEntry(1)
		b.OnExit(2)
	})
	require.NoError(t, err)
	pf.Paths.AddMethod(paths.NewMethodData("run", g, 2))
	pf.Lines.AddLine(2)
	pf.Lines.RegisterExecution(2, "")

	err = cur.Merge(prev)
	require.ErrorIs(t, err, paths.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "a.go")

	// line counts are merged regardless
	f, _ := cur.File("a.go")
	assert.Equal(t, int64(1), f.Lines.ExecutionCount(2))
}

func TestData_JSONRoundTrip(t *testing.T) {
	d := NewData()
	d.SetWithCallPoints(true)
	f := addFile(t, d, "pkg/a.go", 42)
	f.Kind = "class"
	f.Lines.RegisterExecution(3, "TestA")
	f.Paths.RegisterExecution(1, skipThen)

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	got := NewData()
	require.NoError(t, json.Unmarshal(raw, got))
	assert.True(t, got.WithCallPoints())

	gf, ok := got.File("pkg/a.go")
	require.True(t, ok)
	assert.Equal(t, int64(42), gf.LastModified)
	assert.Equal(t, "class", gf.Kind)
	assert.Equal(t, int64(1), gf.Lines.ExecutionCount(3))
	for _, m := range []metric.Metric{metric.Line, metric.Branch, metric.Path} {
		assert.Equal(t, d.Percentage(m, ""), got.Percentage(m, ""), m.String())
	}
}

func TestData_UnmarshalRejectsDuplicateFiles(t *testing.T) {
	raw := `{"files":[{"path":"a.go","index":0,"last_modified":0},{"path":"a.go","index":1,"last_modified":0}]}`
	err := json.Unmarshal([]byte(raw), NewData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate file a.go")
}

func TestParseThresholds(t *testing.T) {
	got, err := ParseThresholds(" 80 ; PERFILE:70;pkg/x=90;")
	require.NoError(t, err)
	assert.Equal(t, []Threshold{
		{Min: 80},
		{PerFile: true, Min: 70},
		{Prefix: "pkg/x", Min: 90},
	}, got)

	for _, bad := range []string{"abc", "pkg:101", "perFile:-1", "pkg:"} {
		_, err := ParseThresholds(bad)
		assert.Error(t, err, bad)
	}

	got, err = ParseThresholds("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheck_Run(t *testing.T) {
	d := NewData()
	a := addFile(t, d, "pkg/a.go", 1)
	a.Lines.RegisterExecution(2, "")
	a.Lines.RegisterExecution(5, "")

	dir := t.TempDir()
	indicator := filepath.Join(dir, FailureIndicatorFile)

	check, err := NewCheck([]metric.Metric{metric.Line, metric.Branch}, "perFile:70;pkg/:60")
	require.NoError(t, err)
	violations, err := check.Run(d, dir)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "line coverage too low for some source files: 66% < 70%", violations[0].String())
	assert.FileExists(t, indicator)

	// a second failing run touches the existing indicator
	_, err = check.Run(d, dir)
	require.NoError(t, err)
	assert.FileExists(t, indicator)

	a.Lines.RegisterExecution(3, "")
	violations, err = check.Run(d, dir)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.NoFileExists(t, indicator)
}

func TestCheck_DisabledWithoutThresholds(t *testing.T) {
	check, err := NewCheck(metric.All, "")
	require.NoError(t, err)
	assert.False(t, check.Enabled())

	dir := t.TempDir()
	violations, err := check.Run(NewData(), dir)
	require.NoError(t, err)
	assert.Empty(t, violations)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComputeIncrease(t *testing.T) {
	prev := NewData()
	pa := addFile(t, prev, "a.go", 1)
	pa.Lines.RegisterExecution(2, "")

	cur := NewData()
	ca := addFile(t, cur, "a.go", 1)
	ca.Lines.RegisterExecution(2, "")
	ca.Lines.RegisterExecution(5, "")
	ca.Paths.RegisterExecution(1, skipThen)
	cb := cur.GetOrAddFile("b.go")
	cb.Lines.AddLine(9)
	cb.Lines.RegisterExecution(9, "")

	inc := ComputeIncrease(prev, cur)
	assert.Equal(t, []FileIncrease{
		{Path: "a.go", Lines: []int{5}},
		{Path: "b.go", Lines: []int{9}},
	}, inc.Files)
	assert.Equal(t, 2, inc.NewlyCoveredLines)
	assert.Equal(t, 1, inc.NewlyCoveredPaths)
	assert.Equal(t, 33, inc.PreviousPercentage)
	assert.Equal(t, 75, inc.CurrentPercentage)
	assert.Contains(t, inc.Summary(), "2 new lines in 2 files, 1 new paths")
	assert.True(t, HasIncreased(prev, cur))
	assert.False(t, HasIncreased(cur, cur))
	assert.Equal(t, "no new coverage", ComputeIncrease(cur, cur).Summary())
}

func TestConvertGcovrUncoveredReport(t *testing.T) {
	input := ConvertGcovrUncoveredReport(nil, "/base/path")
	assert.NotNil(t, input)
	assert.Len(t, input.Files, 0)
}

func TestCrossCheck(t *testing.T) {
	d := NewData()
	a := addFile(t, d, "pkg/a.go", 1)
	a.Lines.RegisterExecution(2, "")
	a.Lines.RegisterExecution(2, "")
	// unreachable lines count as covered but were never executed
	unreachable, ok := a.Lines.LineData(3)
	require.True(t, ok)
	unreachable.MarkUnreachable()

	input := &UncoveredInput{Files: []UncoveredFile{
		{
			FilePath: "/src/pkg/a.go",
			Functions: []UncoveredFunction{
				{FunctionName: "_Z3runv", DemangledName: "run()", UncoveredLines: []int{2, 3, 40}},
			},
		},
		{FilePath: "/src/pkg/unknown.go", Functions: []UncoveredFunction{{FunctionName: "f", UncoveredLines: []int{1}}}},
	}}

	got := CrossCheck(d, input, "/src")
	require.Len(t, got, 1)
	assert.Equal(t, Disagreement{Path: "pkg/a.go", Function: "run()", Line: 2, Count: 2}, got[0])
	assert.Equal(t, "pkg/a.go:2 (run()): executed 2 times here, uncovered in gcovr", got[0].String())

	assert.Empty(t, CrossCheck(d, nil, ""))
}

func TestLoadGcovrUncoveredReport_Errors(t *testing.T) {
	_, err := LoadGcovrUncoveredReport("", "")
	assert.Error(t, err)

	_, err = LoadGcovrUncoveredReport(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadGcovrUncoveredReport(bad, "")
	assert.Error(t, err)
}

func TestParseGcovrUncoveredReport(t *testing.T) {
	input, err := ParseGcovrUncoveredReport([]byte(`{}`), "/src")
	require.NoError(t, err)
	assert.Empty(t, input.Files)

	_, err = ParseGcovrUncoveredReport([]byte(`{`), "")
	require.Error(t, err)
}
