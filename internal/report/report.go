// Package report renders coverage summaries as tables, JSON, YAML and
// markdown.
package report

// Reporter saves a coverage summary somewhere persistent.
type Reporter interface {
	// Save writes the summary.
	Save(s *Summary) error
}
