package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// MarkdownReporter implements the Reporter interface by saving summaries as
// markdown files.
type MarkdownReporter struct {
	outputDir string
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
	}
}

// Save writes the summary to coverage_<timestamp>.md in the output
// directory.
func (r *MarkdownReporter) Save(s *Summary) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	reportName := fmt.Sprintf("coverage_%d.md", s.GeneratedAt.UnixNano())
	reportPath := filepath.Join(r.outputDir, reportName)

	var content string
	content += "# Coverage Report\n\n"
	content += fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	content += "| File |"
	sep := "|---|"
	for _, m := range s.Metrics {
		content += fmt.Sprintf(" %s |", headNames[m])
		sep += "---:|"
	}
	content += "\n" + sep + "\n"

	writeRow := func(path string, row Row) {
		content += fmt.Sprintf("| %s |", path)
		for _, m := range s.Metrics {
			content += fmt.Sprintf(" %s |", row.Counts(m))
		}
		content += "\n"
	}
	for _, row := range s.Files {
		writeRow(row.Path, row)
	}
	writeRow("**"+s.Total.Path+"**", s.Total)

	return os.WriteFile(reportPath, []byte(content), 0644)
}
