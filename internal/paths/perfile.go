package paths

import (
	"errors"
	"slices"
	"sync"

	"go.uber.org/atomic"

	"github.com/zjy-dev/pathcov/internal/metric"
)

// PerFilePaths holds the path data of every instrumented method in one
// source file, keyed by the method's entry line.
type PerFilePaths struct {
	mu      sync.RWMutex
	methods map[int]*MethodData

	dirty        atomic.Bool
	totalPaths   int
	coveredPaths int
}

var _ metric.PerFileCoverage = (*PerFilePaths)(nil)

// NewPerFilePaths returns an empty per-file path collection.
func NewPerFilePaths() *PerFilePaths {
	p := &PerFilePaths{methods: make(map[int]*MethodData)}
	p.dirty.Store(true)
	return p
}

// AddMethod registers a method, replacing any method with the same entry
// line.
func (p *PerFilePaths) AddMethod(m *MethodData) {
	p.mu.Lock()
	m.owner = &p.dirty
	p.methods[m.FirstLine] = m
	p.mu.Unlock()
	p.dirty.Store(true)
}

// Method returns the method whose entry is at firstLine.
func (p *PerFilePaths) Method(firstLine int) (*MethodData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.methods[firstLine]
	return m, ok
}

// Methods returns all methods ordered by entry line.
func (p *PerFilePaths) Methods() []*MethodData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*MethodData, 0, len(p.methods))
	for _, m := range p.methods {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *MethodData) int { return a.FirstLine - b.FirstLine })
	return out
}

// Empty reports whether no method has been registered.
func (p *PerFilePaths) Empty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.methods) == 0
}

// RegisterExecution counts one execution of the path seq through the
// method entered at firstLine. It returns the previous count, or -1 when
// the method is unknown or no path matches.
func (p *PerFilePaths) RegisterExecution(firstLine int, seq []int) int64 {
	m, ok := p.Method(firstLine)
	if !ok {
		return -1
	}
	return m.RegisterPathExecution(seq)
}

func (p *PerFilePaths) refresh() {
	if !p.dirty.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty.Swap(false) {
		return
	}
	total, covered := 0, 0
	for _, m := range p.methods {
		total += m.TotalPaths()
		covered += m.CoveredPaths()
	}
	p.totalPaths, p.coveredPaths = total, covered
}

// TotalItems is the number of non-shadowed paths in the file.
func (p *PerFilePaths) TotalItems() int {
	p.refresh()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalPaths
}

// CoveredItems is the number of covered non-shadowed paths in the file.
func (p *PerFilePaths) CoveredItems() int {
	p.refresh()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coveredPaths
}

// CoveragePercentage is the file's path coverage.
func (p *PerFilePaths) CoveragePercentage() int {
	p.refresh()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return metric.Percentage(p.coveredPaths, p.totalPaths)
}

// Merge folds prev, the same file's data from an earlier run, into p.
// Methods present in both have their path counts summed; methods only in
// prev are carried over. Methods whose paths changed shape keep only the
// current counts and are reported in the returned error.
func (p *PerFilePaths) Merge(prev *PerFilePaths) error {
	if prev == nil || prev == p {
		return nil
	}
	prevMethods := prev.Methods()

	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.dirty.Store(true)

	var errs []error
	for _, pm := range prevMethods {
		m, ok := p.methods[pm.FirstLine]
		if !ok {
			c := pm.clone()
			c.owner = &p.dirty
			p.methods[c.FirstLine] = c
			continue
		}
		if err := m.AddCountsFromPreviousRun(pm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
