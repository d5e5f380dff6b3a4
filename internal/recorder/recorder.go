// Package recorder is the runtime side of coverage collection: instrumented
// code reports executed lines, branches and paths through it.
package recorder

import (
	"go.uber.org/atomic"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/logger"
	"github.com/zjy-dev/pathcov/internal/paths"
)

var log = logger.Named("recorder")

// CallPointFunc names the test currently running. It is consulted only when
// call points are enabled on the recorded data.
type CallPointFunc func() string

// Recorder routes execution events to a project's coverage data. All methods
// are safe for concurrent use.
type Recorder struct {
	data       *coverage.Data
	terminated atomic.Bool
	callPoint  CallPointFunc
}

// New returns a recorder writing into data.
func New(data *coverage.Data) *Recorder {
	return &Recorder{data: data}
}

// SetCallPointFunc installs fn as the source of call point names. Set it
// before recording starts.
func (r *Recorder) SetCallPointFunc(fn CallPointFunc) {
	r.callPoint = fn
}

// Data returns the recorded coverage data.
func (r *Recorder) Data() *coverage.Data { return r.data }

// Terminate ends recording; every later event is dropped.
func (r *Recorder) Terminate() {
	if !r.terminated.Swap(true) {
		log.Debug("recording terminated")
	}
}

// Terminated reports whether Terminate was called.
func (r *Recorder) Terminated() bool { return r.terminated.Load() }

func (r *Recorder) test() string {
	if r.callPoint == nil || !r.data.WithCallPoints() {
		return ""
	}
	return r.callPoint()
}

// File returns a recorder bound to the file registered under index.
func (r *Recorder) File(index int) (*FileRecorder, bool) {
	f, ok := r.data.FileByIndex(index)
	if !ok {
		return nil, false
	}
	return &FileRecorder{r: r, f: f}, true
}

func (r *Recorder) file(path string) (*FileRecorder, bool) {
	f, ok := r.data.File(path)
	if !ok {
		return nil, false
	}
	return &FileRecorder{r: r, f: f}, true
}

// LineExecuted counts one execution of line in the file at path and returns
// the previous count, or -1 when the line is unknown or recording ended.
func (r *Recorder) LineExecuted(path string, line int) int64 {
	fr, ok := r.file(path)
	if !ok {
		return -1
	}
	return fr.RegisterLineExecution(line)
}

// BranchExecuted counts one execution of branch index on line.
func (r *Recorder) BranchExecuted(path string, line, index int) int64 {
	fr, ok := r.file(path)
	if !ok {
		return -1
	}
	return fr.RegisterBranchExecution(line, index)
}

// PathExecuted counts one execution of the node sequence seq through the
// method entered at entryLine.
func (r *Recorder) PathExecuted(path string, entryLine int, seq []int) int64 {
	fr, ok := r.file(path)
	if !ok {
		return -1
	}
	return fr.RegisterPathExecution(entryLine, seq)
}

// FileRecorder records events of one source file.
type FileRecorder struct {
	r *Recorder
	f *coverage.FileData
}

// Path is the recorded file's path.
func (fr *FileRecorder) Path() string { return fr.f.Path }

// RegisterLineExecution counts one execution of line.
func (fr *FileRecorder) RegisterLineExecution(line int) int64 {
	if fr.r.Terminated() {
		return -1
	}
	if _, ok := fr.f.Lines.LineData(line); !ok {
		return -1
	}
	return fr.f.Lines.RegisterExecution(line, fr.r.test())
}

// RegisterBranchExecution counts one execution of branch index on line.
// Invalidated or unknown branches are ignored.
func (fr *FileRecorder) RegisterBranchExecution(line, index int) int64 {
	if fr.r.Terminated() {
		return -1
	}
	prev, err := fr.f.Lines.RegisterBranchExecution(line, index, fr.r.test())
	if err != nil {
		return -1
	}
	return prev
}

// RegisterPathExecution counts one execution of the path seq through the
// method entered at entryLine.
func (fr *FileRecorder) RegisterPathExecution(entryLine int, seq []int) int64 {
	if fr.r.Terminated() {
		return -1
	}
	return fr.f.Paths.RegisterExecution(entryLine, seq)
}

// EnterMethod starts recording one execution of the method entered at
// entryLine, node by node. It returns nil when the method has no path data.
func (fr *FileRecorder) EnterMethod(entryLine int) *MethodExecution {
	m, ok := fr.f.Paths.Method(entryLine)
	if !ok {
		return nil
	}
	ex := &MethodExecution{r: fr.r, trace: m.NewTrace()}
	ex.trace.MarkReached(0)
	return ex
}

// MethodExecution follows one execution of a method. It must not be shared
// between goroutines running the method concurrently.
type MethodExecution struct {
	r     *Recorder
	trace *paths.Trace
}

// Reach notes that node idx was reached. At an Exit node the collected
// sequence is counted as a path and its previous count returned; otherwise
// the result is -1.
func (ex *MethodExecution) Reach(idx int) int64 {
	if ex.r.Terminated() {
		return -1
	}
	return ex.trace.MarkReached(idx)
}

// Reached returns the node sequence recorded so far.
func (ex *MethodExecution) Reached() []int { return ex.trace.Reached() }
