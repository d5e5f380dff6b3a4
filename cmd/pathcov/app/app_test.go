package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/pathcov/internal/coverage"
)

const events = `
files:
  - path: pkg/a.go
    last_modified: 42
    methods:
      - name: run
        last_line: 5
        events:
          - {op: entry, line: 1}
          - {op: cond, line: 2, target: skip}
          - {op: instr, line: 3}
          - {op: label, line: 4, target: skip}
          - {op: exit, line: 5}
`

const trace = `
runs:
  - test: TestSkip
    file: pkg/a.go
    lines: [2, 5]
    branches: [{line: 2, index: 1}]
    methods:
      - {entry: 1, reached: [0, 1, 3, 4]}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewPathcovCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	eventsPath := writeFile(t, dir, "events.yaml", events)
	tracePath := writeFile(t, dir, "trace.yaml", trace)
	data := filepath.Join(dir, "cov.json")
	reports := filepath.Join(dir, "reports")

	out, err := run(t, "build", eventsPath, "--data-file", data)
	require.NoError(t, err, out)
	assert.Contains(t, out, "pkg/a.go: 1 methods, 2 paths, 0 failed")

	baseline := filepath.Join(dir, "baseline.json")
	raw, err := os.ReadFile(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(baseline, raw, 0644))

	out, err = run(t, "replay", tracePath, "--data-file", data)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 lines, 1 branches, 1 paths recorded; 0 events unmatched")

	out, err = run(t, "report", "--data-file", data, "--format", "json", "--metrics", "line,path")
	require.NoError(t, err, out)
	var summary struct {
		Total struct {
			Coverage map[string]struct {
				Percentage int `json:"percentage"`
			} `json:"coverage"`
		} `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 66, summary.Total.Coverage["line"].Percentage)
	assert.Equal(t, 50, summary.Total.Coverage["path"].Percentage)

	out, err = run(t, "report", "--data-file", data, "--markdown", "--output-dir", reports, "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "pkg/a.go")
	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	out, err = run(t, "check", "--data-file", data, "--thresholds", "70", "--output-dir", reports)
	require.Error(t, err)
	assert.Contains(t, out, "line coverage too low: 66% < 70%")
	assert.FileExists(t, filepath.Join(reports, coverage.FailureIndicatorFile))

	out, err = run(t, "check", "--data-file", data, "--thresholds", "60", "--output-dir", reports)
	require.NoError(t, err, out)
	assert.NoFileExists(t, filepath.Join(reports, coverage.FailureIndicatorFile))

	out, err = run(t, "diff", baseline, data)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 new lines in 1 files, 1 new paths")
	assert.Contains(t, out, "pkg/a.go: [2 5]")

	merged := filepath.Join(dir, "merged.json")
	out, err = run(t, "merge", data, data, "-o", merged)
	require.NoError(t, err, out)
	out, err = run(t, "report", "--data-file", merged, "--format", "yaml", "--metrics", "line")
	require.NoError(t, err, out)
	assert.Contains(t, out, "path: pkg/a.go")
}

func TestBuild_CarriesOverCounts(t *testing.T) {
	dir := t.TempDir()
	eventsPath := writeFile(t, dir, "events.yaml", events)
	tracePath := writeFile(t, dir, "trace.yaml", trace)
	data := filepath.Join(dir, "cov.json")

	_, err := run(t, "build", eventsPath, "--data-file", data)
	require.NoError(t, err)
	_, err = run(t, "replay", tracePath, "--data-file", data)
	require.NoError(t, err)

	// rebuilding the unchanged file keeps the recorded counts
	_, err = run(t, "build", eventsPath, "--data-file", data)
	require.NoError(t, err)
	out, err := run(t, "report", "--data-file", data, "--format", "json", "--metrics", "path")
	require.NoError(t, err)
	assert.Contains(t, out, `"percentage": 50`)

	_, err = run(t, "build", eventsPath, "--data-file", data, "--merge-previous=false")
	require.NoError(t, err)
	out, err = run(t, "report", "--data-file", data, "--format", "json", "--metrics", "path")
	require.NoError(t, err)
	assert.Contains(t, out, `"percentage": 0`)
}

func TestReplay_RequiresDataFile(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "trace.yaml", trace)
	_, err := run(t, "replay", tracePath, "--data-file", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run build first")
}

func TestCheck_NoThresholds(t *testing.T) {
	out, err := run(t, "check", "--data-file", filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "No thresholds configured")
}

func TestCrossCheck_Command(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "cov.json")
	_, err := run(t, "build", writeFile(t, dir, "events.yaml", events), "--data-file", data)
	require.NoError(t, err)

	out, err := run(t, "crosscheck", "--data-file", data, "--gcovr-command", "echo '{}'", "--source-root", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[CrossCheck] 0 disagreements")

	_, err = run(t, "crosscheck", "--data-file", data, "--gcovr-command", "exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with status 3")

	_, err = run(t, "crosscheck", "--data-file", data)
	require.Error(t, err)
}
