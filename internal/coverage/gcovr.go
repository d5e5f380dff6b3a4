package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjy-dev/gcovr-json-util/v2/pkg/gcovr"
)

// UncoveredInput lists lines an external coverage tool reports as not
// covered.
type UncoveredInput struct {
	Files []UncoveredFile
}

// UncoveredFile is one source file of an UncoveredInput.
type UncoveredFile struct {
	FilePath  string
	Functions []UncoveredFunction
}

// UncoveredFunction is one function with uncovered lines.
type UncoveredFunction struct {
	FunctionName string
	// DemangledName is optional; FunctionName is used when empty.
	DemangledName  string
	UncoveredLines []int
	TotalLines     int
	CoveredLines   int
}

// DisplayName is the demangled name when known.
func (f UncoveredFunction) DisplayName() string {
	if f.DemangledName != "" {
		return f.DemangledName
	}
	return f.FunctionName
}

// ConvertGcovrUncoveredReport converts a gcovr-json-util report. When
// sourceParentPath is set, it is joined in front of each relative file path.
func ConvertGcovrUncoveredReport(report *gcovr.UncoveredReport, sourceParentPath string) *UncoveredInput {
	if report == nil {
		return &UncoveredInput{Files: []UncoveredFile{}}
	}

	input := &UncoveredInput{Files: make([]UncoveredFile, 0, len(report.Files))}
	for _, gf := range report.Files {
		filePath := gf.FilePath
		if sourceParentPath != "" && !filepath.IsAbs(filePath) {
			filePath = filepath.Join(sourceParentPath, filePath)
		}
		uf := UncoveredFile{
			FilePath:  filePath,
			Functions: make([]UncoveredFunction, 0, len(gf.UncoveredFunctions)),
		}
		for _, fn := range gf.UncoveredFunctions {
			uf.Functions = append(uf.Functions, UncoveredFunction{
				FunctionName:   fn.FunctionName,
				DemangledName:  fn.DemangledName,
				UncoveredLines: fn.UncoveredLineNumbers,
				TotalLines:     fn.TotalLines,
				CoveredLines:   fn.CoveredLines,
			})
		}
		input.Files = append(input.Files, uf)
	}
	return input
}

// LoadGcovrUncoveredReport reads an uncovered-lines report written by
// gcovr-json-util.
func LoadGcovrUncoveredReport(path, sourceParentPath string) (*UncoveredInput, error) {
	if path == "" {
		return nil, fmt.Errorf("gcovr report path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcovr report: %w", err)
	}
	input, err := ParseGcovrUncoveredReport(raw, sourceParentPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return input, nil
}

// ParseGcovrUncoveredReport decodes the JSON of an uncovered-lines report.
func ParseGcovrUncoveredReport(raw []byte, sourceParentPath string) (*UncoveredInput, error) {
	var report gcovr.UncoveredReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse gcovr report: %w", err)
	}
	return ConvertGcovrUncoveredReport(&report, sourceParentPath), nil
}

// Disagreement is a line the external tool reports as uncovered while the
// recorded data has it covered.
type Disagreement struct {
	Path     string
	Function string
	Line     int
	Count    int64
}

func (d Disagreement) String() string {
	return fmt.Sprintf("%s:%d (%s): executed %d times here, uncovered in gcovr", d.Path, d.Line, d.Function, d.Count)
}

// CrossCheck compares d with an external uncovered-lines report. File paths
// in input have stripPrefix removed before lookup. Files and lines unknown
// to d are ignored.
func CrossCheck(d *Data, input *UncoveredInput, stripPrefix string) []Disagreement {
	var out []Disagreement
	if input == nil {
		return out
	}
	for _, uf := range input.Files {
		path := uf.FilePath
		if stripPrefix != "" {
			path = strings.TrimPrefix(strings.TrimPrefix(path, stripPrefix), string(filepath.Separator))
		}
		f, ok := d.File(path)
		if !ok {
			log.Debug("crosscheck: %s not instrumented", path)
			continue
		}
		for _, fn := range uf.Functions {
			for _, line := range fn.UncoveredLines {
				ld, ok := f.Lines.LineData(line)
				if !ok || ld.ExecutionCount() == 0 {
					continue
				}
				out = append(out, Disagreement{
					Path:     path,
					Function: fn.DisplayName(),
					Line:     line,
					Count:    ld.ExecutionCount(),
				})
			}
		}
	}
	slices.SortFunc(out, func(a, b Disagreement) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return a.Line - b.Line
	})
	return out
}
