// Package instrument turns recorded structural event streams into coverage
// structure: node graphs and enumerated paths per method, and executable
// lines with their branching points per file.
package instrument

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/zjy-dev/pathcov/internal/config"
	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/lines"
	"github.com/zjy-dev/pathcov/internal/logger"
	"github.com/zjy-dev/pathcov/internal/paths"
)

var log = logger.Named("instrument")

// Instrumenter builds coverage structure from event specs.
type Instrumenter struct {
	// Workers bounds the methods built concurrently; <= 0 means NumCPU.
	Workers int
	// MaxPathsWarning logs a warning for methods with more paths; 0 disables.
	MaxPathsWarning int
}

// New returns an Instrumenter configured from cfg.
func New(cfg config.CoverageConfig) *Instrumenter {
	return &Instrumenter{Workers: cfg.Workers, MaxPathsWarning: cfg.MaxPathsWarning}
}

func (in *Instrumenter) workers() int {
	if in.Workers > 0 {
		return in.Workers
	}
	return runtime.NumCPU()
}

// MethodFailure is a method left uninstrumented because its events were
// inconsistent.
type MethodFailure struct {
	Method string
	Line   int
	Err    error
}

// Result summarizes the instrumentation of one file.
type Result struct {
	Path     string
	Methods  int
	Paths    int
	Failures []MethodFailure
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d methods, %d paths, %d failed", r.Path, r.Methods, r.Paths, len(r.Failures))
}

// InstrumentFile registers spec's file in data. Method graphs are built
// concurrently; a method whose events violate the builder's invariants is
// skipped and reported in the result while the rest of the file is still
// instrumented. The returned error is only set when ctx is cancelled.
func (in *Instrumenter) InstrumentFile(ctx context.Context, data *coverage.Data, spec FileSpec) (*Result, error) {
	built := make([]*paths.MethodData, len(spec.Methods))
	failed := make([]error, len(spec.Methods))

	p := pool.New().WithMaxGoroutines(in.workers()).WithContext(ctx)
	for i, ms := range spec.Methods {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			g, err := paths.Build(func(b *paths.Builder) { replay(b, ms.Events) })
			if err != nil {
				failed[i] = err
				return nil
			}
			built[i] = paths.NewMethodData(ms.Name, g, ms.LastLine)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("instrumenting %s: %w", spec.Path, err)
	}

	f := data.GetOrAddFile(spec.Path)
	f.Kind = spec.Kind
	f.LastModified = spec.LastModified

	res := &Result{Path: spec.Path}
	for i, ms := range spec.Methods {
		if err := failed[i]; err != nil {
			line := 0
			if len(ms.Events) > 0 {
				line = ms.Events[0].Line
			}
			log.Warn("%s: method %s at line %d left uninstrumented: %v", spec.Path, ms.Name, line, err)
			res.Failures = append(res.Failures, MethodFailure{Method: ms.Name, Line: line, Err: err})
			continue
		}

		registerLines(f.Lines, ms.Events)
		m := built[i]
		if _, dup := f.Paths.Method(m.FirstLine); dup {
			log.Warn("%s: method %s replaces another method entered at line %d", spec.Path, m.Name, m.FirstLine)
		}
		f.Paths.AddMethod(m)
		res.Methods++
		res.Paths += m.TotalPaths()

		if in.MaxPathsWarning > 0 && m.TotalPaths() > in.MaxPathsWarning {
			log.Warn("%s: method %s has %d paths (more than %d)", spec.Path, m.Name, m.TotalPaths(), in.MaxPathsWarning)
		}
	}
	log.Debug("%s", res)
	return res, nil
}

// InstrumentProject instruments every file of spec in order.
func (in *Instrumenter) InstrumentProject(ctx context.Context, data *coverage.Data, spec *ProjectSpec) ([]*Result, error) {
	results := make([]*Result, 0, len(spec.Files))
	for _, fs := range spec.Files {
		res, err := in.InstrumentFile(ctx, data, fs)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// replay feeds events to b. Invariant violations panic inside b and are
// recovered by paths.Build.
func replay(b *paths.Builder, events []Event) {
	for _, e := range events {
		switch e.Op {
		case OpEntry:
			b.OnEntry(e.Line)
		case OpInstr:
			b.OnInstruction(e.Line, e.opKind())
		case OpCond:
			b.OnConditionalJump(paths.Label(e.Target), e.Line)
		case OpGoto:
			b.OnUnconditionalJump(paths.Label(e.Target), e.Line)
		case OpLabel:
			b.OnJumpTarget(paths.Label(e.Target), e.Line)
		case OpSwitch:
			cases := make([]paths.Label, len(e.Cases))
			for i, c := range e.Cases {
				cases[i] = paths.Label(c)
			}
			b.OnMultiWayJump(paths.Label(e.Default), cases, e.Line)
		case OpExit:
			b.OnExit(e.Line)
		}
	}
}

type branchRef struct {
	line  int
	index int
}

// registerLines adds the executable lines and branching points of one
// method. Jump targets not yet announced get their line when the label
// appears. A conditional jump followed by code on a later line has no code
// after it on its own line.
func registerLines(pl *lines.PerFileLines, events []Event) {
	labelLines := make(map[string]int)
	pending := make(map[string][]branchRef)
	afterCond := 0

	for _, e := range events {
		if e.Op != OpEntry && e.Op != OpLabel && e.Line > 0 {
			if afterCond > 0 && e.Line > afterCond {
				pl.MarkLastLineSegmentAsEmpty(afterCond)
			}
			afterCond = 0
			pl.AddLine(e.Line)
		}

		switch e.Op {
		case OpCond:
			target, known := labelLines[e.Target]
			idx := pl.AddBranchingPoint(e.Line, target)
			if !known {
				pending[e.Target] = append(pending[e.Target], branchRef{line: e.Line, index: idx + 1})
			}
			afterCond = e.Line
		case OpSwitch:
			for _, l := range e.labels() {
				target, known := labelLines[l]
				idx := pl.AddSwitchTarget(e.Line, target)
				if !known {
					pending[l] = append(pending[l], branchRef{line: e.Line, index: idx})
				}
			}
		case OpLabel:
			labelLines[e.Target] = e.Line
			for _, ref := range pending[e.Target] {
				if err := pl.ResolveBranchTarget(ref.line, ref.index, e.Line); err != nil {
					log.Debug("resolving label %s: %v", e.Target, err)
				}
			}
			delete(pending, e.Target)
		}
	}
}
