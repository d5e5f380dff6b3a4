package coverage

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/zjy-dev/pathcov/internal/metric"
)

// FileIncrease lists the lines of one file covered now but not before.
type FileIncrease struct {
	Path  string
	Lines []int
}

// Increase describes what a run covered that an earlier one did not.
type Increase struct {
	Files              []FileIncrease
	NewlyCoveredLines  int
	NewlyCoveredPaths  int
	PreviousPercentage int
	CurrentPercentage  int
}

// Summary is a one-line human-readable description.
func (inc *Increase) Summary() string {
	if inc.NewlyCoveredLines == 0 && inc.NewlyCoveredPaths == 0 {
		return "no new coverage"
	}
	return fmt.Sprintf("%d new lines in %d files, %d new paths (line coverage %s%% -> %s%%)",
		inc.NewlyCoveredLines, len(inc.Files), inc.NewlyCoveredPaths,
		formatPct(inc.PreviousPercentage), formatPct(inc.CurrentPercentage))
}

// FormattedReport lists the new lines per file.
func (inc *Increase) FormattedReport() string {
	var b strings.Builder
	b.WriteString(inc.Summary())
	b.WriteString("\n")
	for _, f := range inc.Files {
		fmt.Fprintf(&b, "  %s: %v\n", f.Path, f.Lines)
	}
	return b.String()
}

func formatPct(p int) string {
	if p < 0 {
		return "n/a"
	}
	return fmt.Sprint(p)
}

// CoveredLineSet returns the covered lines of f as a bitmap.
func CoveredLineSet(f *FileData) *roaring.Bitmap {
	bm := roaring.New()
	for _, l := range f.Lines.CoveredLines() {
		bm.Add(uint32(l))
	}
	return bm
}

// HasIncreased reports whether cur covers any line or path that prev does
// not.
func HasIncreased(prev, cur *Data) bool {
	inc := ComputeIncrease(prev, cur)
	return inc.NewlyCoveredLines > 0 || inc.NewlyCoveredPaths > 0
}

// ComputeIncrease compares two snapshots of the same project.
func ComputeIncrease(prev, cur *Data) *Increase {
	inc := &Increase{
		PreviousPercentage: prev.Percentage(metric.Line, ""),
		CurrentPercentage:  cur.Percentage(metric.Line, ""),
	}
	for _, f := range cur.Files() {
		now := CoveredLineSet(f)
		pf, ok := prev.File(f.Path)
		if ok {
			now.AndNot(CoveredLineSet(pf))
		}
		if n := int(now.GetCardinality()); n > 0 {
			fi := FileIncrease{Path: f.Path}
			for _, l := range now.ToArray() {
				fi.Lines = append(fi.Lines, int(l))
			}
			inc.Files = append(inc.Files, fi)
			inc.NewlyCoveredLines += n
		}

		covered := f.Paths.CoveredItems()
		if ok {
			covered -= pf.Paths.CoveredItems()
		}
		if covered > 0 {
			inc.NewlyCoveredPaths += covered
		}
	}
	return inc
}
