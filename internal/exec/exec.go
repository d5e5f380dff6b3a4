// Package exec runs the external tools whose reports pathcov compares
// against, such as gcovr.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result holds the outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Failed reports whether the command exited non-zero.
func (r *Result) Failed() bool { return r.ExitCode != 0 }

// Executor runs external commands. It is an interface so tests can replace
// the tool being called.
type Executor interface {
	Run(ctx context.Context, dir, command string, args ...string) (*Result, error)
}

// CommandExecutor runs commands on the host.
type CommandExecutor struct{}

// NewCommandExecutor creates a new CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Run executes command in dir (the current directory when empty). A non-zero
// exit status is reported through Result.ExitCode, not as an error; errors
// are reserved for commands that could not run or were cancelled.
func (e *CommandExecutor) Run(ctx context.Context, dir, command string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", command, ctxErr)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, err
	}
	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, nil
}

// RunShell runs a shell command line with sh -c and returns its standard
// output, failing when the command exits non-zero.
func RunShell(ctx context.Context, e Executor, dir, commandLine string) ([]byte, error) {
	res, err := e.Run(ctx, dir, "sh", "-c", commandLine)
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", commandLine, err)
	}
	if res.Failed() {
		return nil, fmt.Errorf("%q exited with status %d: %s", commandLine, res.ExitCode, res.Stderr)
	}
	return []byte(res.Stdout), nil
}
