package coverage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zjy-dev/pathcov/internal/metric"
)

// FailureIndicatorFile is created in the output directory while minimum
// coverage is not met, and removed once it is.
const FailureIndicatorFile = "coverage.check.failed"

const perFileScope = "perFile"

var thresholdSeparators = regexp.MustCompile(`[:=]`)

// Threshold is one minimum coverage requirement.
type Threshold struct {
	// Prefix restricts the requirement to files under a path prefix.
	Prefix string
	// PerFile applies the minimum to every file instead of the total.
	PerFile bool
	Min     int
}

func (t Threshold) scope() string {
	switch {
	case t.PerFile:
		return " for some source files"
	case t.Prefix != "":
		return " for " + t.Prefix
	default:
		return ""
	}
}

// ParseThresholds parses "80;perFile:70;internal/foo:90". Each entry is a
// bare minimum for the project total, "perFile" followed by a minimum for
// every file, or a path prefix followed by a minimum; ':' and '=' both
// separate scope and value.
func ParseThresholds(spec string) ([]Threshold, error) {
	var out []Threshold
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := thresholdSeparators.Split(entry, 2)

		var t Threshold
		value := parts[0]
		if len(parts) == 2 {
			scope := strings.TrimSpace(parts[0])
			if strings.EqualFold(scope, perFileScope) {
				t.PerFile = true
			} else {
				t.Prefix = scope
			}
			value = parts[1]
		}
		min, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || min < 0 || min > 100 {
			return nil, fmt.Errorf("invalid coverage threshold %q: minimum must be 0-100", entry)
		}
		t.Min = min
		out = append(out, t)
	}
	return out, nil
}

// Violation is a threshold that was not met.
type Violation struct {
	Metric    metric.Metric
	Threshold Threshold
	Actual    int
}

func (v Violation) String() string {
	return fmt.Sprintf("%s coverage too low%s: %d%% < %d%%", v.Metric, v.Threshold.scope(), v.Actual, v.Threshold.Min)
}

// Check verifies minimum coverage for a set of metrics.
type Check struct {
	Metrics    []metric.Metric
	Thresholds []Threshold
}

// NewCheck parses spec into a Check over metrics.
func NewCheck(metrics []metric.Metric, spec string) (*Check, error) {
	th, err := ParseThresholds(spec)
	if err != nil {
		return nil, err
	}
	return &Check{Metrics: metrics, Thresholds: th}, nil
}

// Enabled reports whether any threshold is configured.
func (c *Check) Enabled() bool { return len(c.Thresholds) > 0 }

// Verify returns every unmet threshold. Scopes with nothing to cover pass.
func (c *Check) Verify(d *Data) []Violation {
	var out []Violation
	for _, m := range c.Metrics {
		for _, t := range c.Thresholds {
			var pct int
			if t.PerFile {
				pct = d.SmallestPerFilePercentage(m)
			} else {
				pct = d.Percentage(m, t.Prefix)
			}
			if pct >= 0 && pct < t.Min {
				out = append(out, Violation{Metric: m, Threshold: t, Actual: pct})
			}
		}
	}
	return out
}

// Run verifies d and maintains FailureIndicatorFile in outputDir: created or
// touched on failure, removed on success. Nothing happens when no threshold
// is configured.
func (c *Check) Run(d *Data, outputDir string) ([]Violation, error) {
	if !c.Enabled() {
		return nil, nil
	}
	violations := c.Verify(d)
	for _, v := range violations {
		log.Warn("%s", v)
	}

	indicator := filepath.Join(outputDir, FailureIndicatorFile)
	if len(violations) == 0 {
		if err := os.Remove(indicator); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove %s: %w", indicator, err)
		}
		return nil, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return violations, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	if _, err := os.Stat(indicator); err == nil {
		now := time.Now()
		if err := os.Chtimes(indicator, now, now); err != nil {
			return violations, fmt.Errorf("failed to touch %s: %w", indicator, err)
		}
		return violations, nil
	}
	if err := os.WriteFile(indicator, nil, 0644); err != nil {
		return violations, fmt.Errorf("failed to create %s: %w", indicator, err)
	}
	return violations, nil
}
