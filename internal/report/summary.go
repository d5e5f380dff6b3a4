package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/metric"
)

// Counts is the coverage of one metric.
type Counts struct {
	Covered    int `json:"covered" yaml:"covered"`
	Total      int `json:"total" yaml:"total"`
	Percentage int `json:"percentage" yaml:"percentage"`
}

func newCounts(covered, total int) Counts {
	return Counts{Covered: covered, Total: total, Percentage: metric.Percentage(covered, total)}
}

// Applicable reports whether there is anything to cover.
func (c Counts) Applicable() bool { return c.Total > 0 }

func (c Counts) String() string {
	if !c.Applicable() {
		return "n/a"
	}
	return fmt.Sprintf("%s%% (%d/%d)", metric.Format(c.Covered, c.Total), c.Covered, c.Total)
}

// Row is the coverage of one file, or of the whole project.
type Row struct {
	Path     string            `json:"path" yaml:"path"`
	Coverage map[string]Counts `json:"coverage" yaml:"coverage"`
}

// Counts returns the row's coverage for m.
func (r Row) Counts(m metric.Metric) Counts {
	return r.Coverage[m.String()]
}

// Summary is a per-file and total view of project coverage.
type Summary struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Metrics     []metric.Metric `json:"-" yaml:"-"`
	Files       []Row           `json:"files" yaml:"files"`
	Total       Row             `json:"total" yaml:"total"`
}

// Build summarizes d for metrics; no metrics means all of them.
func Build(d *coverage.Data, metrics []metric.Metric) *Summary {
	if len(metrics) == 0 {
		metrics = metric.All
	}
	s := &Summary{
		GeneratedAt: time.Now().UTC(),
		Metrics:     metrics,
		Total:       Row{Path: "Total", Coverage: make(map[string]Counts, len(metrics))},
	}
	for _, f := range d.Files() {
		row := Row{Path: f.Path, Coverage: make(map[string]Counts, len(metrics))}
		for _, m := range metrics {
			c := f.Coverage(m)
			row.Coverage[m.String()] = newCounts(c.CoveredItems(), c.TotalItems())
		}
		s.Files = append(s.Files, row)
	}
	for _, m := range metrics {
		s.Total.Coverage[m.String()] = newCounts(d.Totals(m, ""))
	}
	return s
}

// Write encodes s as "json", "yaml" or, for "table" or "", a plain table.
func (s *Summary) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	case "table", "":
		return s.Render(w, Options{})
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}
