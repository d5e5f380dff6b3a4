// Package coverage aggregates line, branch and path data per source file and
// per project, and merges data from successive test runs.
package coverage

import (
	"encoding/json"
	"fmt"

	"github.com/zjy-dev/pathcov/internal/lines"
	"github.com/zjy-dev/pathcov/internal/metric"
	"github.com/zjy-dev/pathcov/internal/paths"
)

// FileData holds all coverage data of one source file.
type FileData struct {
	Path  string
	Index int
	// Kind describes the top-level declaration of the file (e.g. "class",
	// "interface"); informational only.
	Kind string
	// LastModified is the source file's modification stamp when it was
	// instrumented. Zero means unknown, which disables merging.
	LastModified int64

	Lines *lines.PerFileLines
	Paths *paths.PerFilePaths
}

// NewFileData returns empty data for path.
func NewFileData(path string, index int) *FileData {
	return &FileData{
		Path:  path,
		Index: index,
		Lines: lines.NewPerFileLines(),
		Paths: paths.NewPerFilePaths(),
	}
}

// Coverage returns the per-file view for metric m.
func (f *FileData) Coverage(m metric.Metric) metric.PerFileCoverage {
	switch m {
	case metric.Branch:
		return f.Lines.Branches()
	case metric.Path:
		return f.Paths
	default:
		return f.Lines
	}
}

// Empty reports whether the file has neither executable lines nor methods.
func (f *FileData) Empty() bool {
	return f.Lines.ExecutableLineCount() == 0 && f.Paths.Empty()
}

// CanMergeWith reports whether prev describes the same version of the
// source file: both stamps must be known and equal.
func (f *FileData) CanMergeWith(prev *FileData) bool {
	return f.LastModified > 0 && f.LastModified == prev.LastModified
}

// mergeWithPreviousRun folds prev into f; the caller has checked
// CanMergeWith.
func (f *FileData) mergeWithPreviousRun(prev *FileData) error {
	f.Lines.Merge(prev.Lines)
	if err := f.Paths.Merge(prev.Paths); err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	return nil
}

// clone copies f so that counts recorded into the copy leave f untouched.
func (f *FileData) clone() (*FileData, error) {
	c := NewFileData(f.Path, f.Index)
	c.Kind, c.LastModified = f.Kind, f.LastModified
	c.Lines.Merge(f.Lines)
	if err := c.Paths.Merge(f.Paths); err != nil {
		return c, fmt.Errorf("%s: %w", f.Path, err)
	}
	return c, nil
}

type fileJSON struct {
	Path         string              `json:"path"`
	Index        int                 `json:"index"`
	Kind         string              `json:"kind,omitempty"`
	LastModified int64               `json:"last_modified"`
	Lines        *lines.PerFileLines `json:"lines"`
	Methods      *paths.PerFilePaths `json:"methods"`
}

// MarshalJSON encodes the file's data.
func (f *FileData) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileJSON{
		Path: f.Path, Index: f.Index, Kind: f.Kind, LastModified: f.LastModified,
		Lines: f.Lines, Methods: f.Paths,
	})
}

// UnmarshalJSON decodes the file's data.
func (f *FileData) UnmarshalJSON(data []byte) error {
	in := fileJSON{Lines: lines.NewPerFileLines(), Methods: paths.NewPerFilePaths()}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("file data: %w", err)
	}
	f.Path, f.Index, f.Kind, f.LastModified = in.Path, in.Index, in.Kind, in.LastModified
	f.Lines, f.Paths = in.Lines, in.Methods
	return nil
}
