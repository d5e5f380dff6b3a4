package instrument

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/pathcov/internal/recorder"
)

// TraceSpec is a recorded execution: what instrumented code reported while
// tests ran.
type TraceSpec struct {
	Runs []Run `yaml:"runs"`
}

// Run is what one test executed in one file.
type Run struct {
	Test string `yaml:"test,omitempty"`
	File string `yaml:"file"`
	// Repeat replays the run this many times; 0 means once.
	Repeat   int         `yaml:"repeat,omitempty"`
	Lines    []int       `yaml:"lines,omitempty"`
	Branches []BranchHit `yaml:"branches,omitempty"`
	Methods  []MethodHit `yaml:"methods,omitempty"`
}

// BranchHit is one execution of a branch.
type BranchHit struct {
	Line  int `yaml:"line"`
	Index int `yaml:"index"`
}

// MethodHit is one execution of a method: its entry line and the node
// indices reached, in order.
type MethodHit struct {
	Entry   int   `yaml:"entry"`
	Reached []int `yaml:"reached"`
}

// ReplayStats counts what a replay recorded.
type ReplayStats struct {
	Lines     int
	Branches  int
	Paths     int
	Unmatched int
}

func (s ReplayStats) String() string {
	return fmt.Sprintf("%d lines, %d branches, %d paths recorded; %d events unmatched", s.Lines, s.Branches, s.Paths, s.Unmatched)
}

// LoadTrace reads a trace from a YAML file.
func LoadTrace(path string) (*TraceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	var t TraceSpec
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trace %s: %w", path, err)
	}
	return &t, nil
}

// Replay feeds every run of t to rec, naming each run's test as the call
// point. Events for unknown files, lines, branches or paths are counted as
// unmatched.
func Replay(ctx context.Context, rec *recorder.Recorder, t *TraceSpec) (ReplayStats, error) {
	var stats ReplayStats
	current := ""
	rec.SetCallPointFunc(func() string { return current })

	for _, run := range t.Runs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		current = run.Test
		repeat := max(run.Repeat, 1)
		for i := 0; i < repeat; i++ {
			replayRun(rec, run, &stats)
		}
	}
	log.Info("replay: %s", stats)
	return stats, nil
}

func replayRun(rec *recorder.Recorder, run Run, stats *ReplayStats) {
	for _, l := range run.Lines {
		if rec.LineExecuted(run.File, l) < 0 {
			stats.Unmatched++
		} else {
			stats.Lines++
		}
	}
	for _, b := range run.Branches {
		if rec.BranchExecuted(run.File, b.Line, b.Index) < 0 {
			stats.Unmatched++
		} else {
			stats.Branches++
		}
	}
	if len(run.Methods) == 0 {
		return
	}

	fr, ok := fileRecorder(rec, run.File)
	if !ok {
		stats.Unmatched += len(run.Methods)
		return
	}
	for _, mh := range run.Methods {
		ex := fr.EnterMethod(mh.Entry)
		if ex == nil {
			stats.Unmatched++
			continue
		}
		matched := false
		for _, idx := range mh.Reached {
			if idx == 0 {
				continue
			}
			if ex.Reach(idx) >= 0 {
				matched = true
			}
		}
		if matched {
			stats.Paths++
		} else {
			stats.Unmatched++
		}
	}
}

func fileRecorder(rec *recorder.Recorder, path string) (*recorder.FileRecorder, bool) {
	f, ok := rec.Data().File(path)
	if !ok {
		return nil, false
	}
	return rec.File(f.Index)
}
