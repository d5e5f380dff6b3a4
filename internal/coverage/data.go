package coverage

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zjy-dev/pathcov/internal/logger"
	"github.com/zjy-dev/pathcov/internal/metric"
)

var log = logger.Named("coverage")

// Data is the coverage data of a whole project: every instrumented source
// file, addressable by path or by the index assigned when it was added.
type Data struct {
	mu             sync.RWMutex
	files          map[string]*FileData
	byIndex        []*FileData
	withCallPoints bool
}

// NewData returns an empty project aggregate.
func NewData() *Data {
	return &Data{files: make(map[string]*FileData)}
}

// WithCallPoints reports whether call points are being recorded.
func (d *Data) WithCallPoints() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.withCallPoints
}

// SetWithCallPoints enables or disables call point recording.
func (d *Data) SetWithCallPoints(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.withCallPoints = on
}

// GetOrAddFile returns the data for path, creating it with the next free
// index when absent.
func (d *Data) GetOrAddFile(path string) *FileData {
	d.mu.RLock()
	f, ok := d.files[path]
	d.mu.RUnlock()
	if ok {
		return f
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.files[path]; ok {
		return f
	}
	f = NewFileData(path, len(d.byIndex))
	d.addLocked(f)
	return f
}

func (d *Data) addLocked(f *FileData) {
	f.Index = len(d.byIndex)
	d.files[f.Path] = f
	d.byIndex = append(d.byIndex, f)
}

// File returns the data for path.
func (d *Data) File(path string) (*FileData, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[path]
	return f, ok
}

// FileByIndex returns the file registered under index i.
func (d *Data) FileByIndex(i int) (*FileData, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.byIndex) {
		return nil, false
	}
	return d.byIndex[i], true
}

// Files returns the non-empty files ordered by path.
func (d *Data) Files() []*FileData {
	d.mu.RLock()
	out := make([]*FileData, 0, len(d.byIndex))
	for _, f := range d.byIndex {
		out = append(out, f)
	}
	d.mu.RUnlock()

	out = slices.DeleteFunc(out, func(f *FileData) bool { return f.Empty() })
	slices.SortFunc(out, func(a, b *FileData) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Totals sums covered and total items of metric m over the files whose path
// starts with prefix; an empty prefix selects every file.
func (d *Data) Totals(m metric.Metric, prefix string) (covered, total int) {
	for _, f := range d.Files() {
		if prefix != "" && !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		c := f.Coverage(m)
		covered += c.CoveredItems()
		total += c.TotalItems()
	}
	return covered, total
}

// Percentage is the coverage of metric m over the files whose path starts
// with prefix, or metric.NotApplicable when they have nothing to cover.
func (d *Data) Percentage(m metric.Metric, prefix string) int {
	return metric.Percentage(d.Totals(m, prefix))
}

// SmallestPerFilePercentage is the lowest applicable per-file percentage of
// metric m, or metric.NotApplicable when no file has anything to cover.
func (d *Data) SmallestPerFilePercentage(m metric.Metric) int {
	smallest := metric.NotApplicable
	for _, f := range d.Files() {
		p := f.Coverage(m).CoveragePercentage()
		if p >= 0 && (smallest < 0 || p < smallest) {
			smallest = p
		}
	}
	return smallest
}

// Merge folds prev, the data of an earlier run, into d. A file present in
// both is merged only when both carry the same known modification stamp;
// otherwise the current data wins. Files only in prev are copied in.
// Merging is not idempotent: merging the same data twice adds it twice.
//
// Path structure mismatches inside otherwise mergeable files are collected
// into the returned error; everything else is still merged.
func (d *Data) Merge(prev *Data) error {
	if prev == nil || prev == d {
		return nil
	}

	prev.mu.RLock()
	prevFiles := slices.Clone(prev.byIndex)
	prevCallPoints := prev.withCallPoints
	prev.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.withCallPoints = d.withCallPoints || prevCallPoints

	var errs []error
	for _, pf := range prevFiles {
		cur, ok := d.files[pf.Path]
		switch {
		case !ok:
			c, err := pf.clone()
			if err != nil {
				errs = append(errs, err)
			}
			d.addLocked(c)
		case cur.CanMergeWith(pf):
			if err := cur.mergeWithPreviousRun(pf); err != nil {
				errs = append(errs, err)
			}
		default:
			log.Debug("not merging %s: modification stamp %d differs from %d", pf.Path, pf.LastModified, cur.LastModified)
		}
	}
	return errors.Join(errs...)
}

type dataJSON struct {
	WithCallPoints bool        `json:"with_call_points,omitempty"`
	Files          []*FileData `json:"files"`
}

// MarshalJSON encodes every file in index order.
func (d *Data) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	out := dataJSON{WithCallPoints: d.withCallPoints, Files: slices.Clone(d.byIndex)}
	d.mu.RUnlock()
	if out.Files == nil {
		out.Files = []*FileData{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes files, reassigning indexes in stored order.
func (d *Data) UnmarshalJSON(data []byte) error {
	var in dataJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("coverage data: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = make(map[string]*FileData, len(in.Files))
	d.byIndex = nil
	d.withCallPoints = in.WithCallPoints
	for _, f := range in.Files {
		if _, dup := d.files[f.Path]; dup {
			return fmt.Errorf("coverage data: duplicate file %s", f.Path)
		}
		d.addLocked(f)
	}
	return nil
}
