// Package metric defines the coverage metrics and the percentage arithmetic
// shared by the line, branch and path data models.
package metric

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric identifies one of the coverage measures.
type Metric int

const (
	// Line counts coverable line segments.
	Line Metric = iota
	// Branch counts branch sources and targets.
	Branch
	// Path counts distinct entry-to-exit paths through methods.
	Path
)

// All lists every metric in display order.
var All = []Metric{Line, Branch, Path}

var metricNames = map[Metric]string{
	Line:   "line",
	Branch: "branch",
	Path:   "path",
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Parse converts a metric name ("line", "branch", "path") to a Metric.
func Parse(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line", "lines":
		return Line, nil
	case "branch", "branches":
		return Branch, nil
	case "path", "paths":
		return Path, nil
	default:
		return 0, fmt.Errorf("unknown coverage metric %q", s)
	}
}

// ParseList parses a list of metric names, dropping duplicates.
func ParseList(names []string) ([]Metric, error) {
	seen := make(map[Metric]bool, len(names))
	var result []Metric
	for _, n := range names {
		m, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			result = append(result, m)
		}
	}
	return result, nil
}

// NotApplicable is returned as a percentage when there is nothing to cover.
const NotApplicable = -1

// Percentage returns covered*100/total rounded down, or NotApplicable when
// total is zero.
func Percentage(covered, total int) int {
	if total <= 0 {
		return NotApplicable
	}
	return covered * 100 / total
}

// Format renders a percentage for display. The value is rounded half-up,
// except that partial coverage never displays as "100"; it shows ">99".
func Format(covered, total int) string {
	if total <= 0 {
		return "n/a"
	}
	rounded := (covered*200 + total) / (2 * total)
	if rounded >= 100 && covered < total {
		return ">99"
	}
	return strconv.Itoa(rounded)
}

// PerFileCoverage is implemented by each per-file data model.
type PerFileCoverage interface {
	TotalItems() int
	CoveredItems() int
	CoveragePercentage() int
}
