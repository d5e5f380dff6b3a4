package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/zjy-dev/pathcov/internal/metric"
)

// Options controls table rendering.
type Options struct {
	// Color highlights percentages below WarnBelow in red and the rest in
	// green.
	Color     bool
	WarnBelow int
}

var (
	lowColor  = color.New(color.FgRed)
	okColor   = color.New(color.FgGreen)
	headNames = map[metric.Metric]string{
		metric.Line:   "Line",
		metric.Branch: "Branch",
		metric.Path:   "Path",
	}
)

func (o Options) cell(c Counts) string {
	text := c.String()
	if !o.Color || !c.Applicable() {
		return text
	}
	if c.Percentage < o.WarnBelow {
		return lowColor.Sprint(text)
	}
	return okColor.Sprint(text)
}

// Render writes s as a table, one row per file with the total in the
// footer.
func (s *Summary) Render(w io.Writer, opts Options) error {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	header := []string{"File"}
	align := []int{tablewriter.ALIGN_LEFT}
	for _, m := range s.Metrics {
		header = append(header, headNames[m])
		align = append(align, tablewriter.ALIGN_RIGHT)
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment(align)

	for _, row := range s.Files {
		cells := []string{row.Path}
		for _, m := range s.Metrics {
			cells = append(cells, opts.cell(row.Counts(m)))
		}
		table.Append(cells)
	}

	footer := []string{fmt.Sprintf("Total (%d files)", len(s.Files))}
	for _, m := range s.Metrics {
		footer = append(footer, opts.cell(s.Total.Counts(m)))
	}
	table.SetFooter(footer)

	table.Render()
	_, err := w.Write(buf.Bytes())
	return err
}
