// Package sandbox executes assembled checkpoint evaluations. The engine
// only depends on the Executor interface; LocalExecutor is the subprocess
// implementation used by the CLI.
package sandbox

import (
	"context"
	"log/slog"

	"github.com/gradebench/gradebench/internal/assemble"
	"github.com/gradebench/gradebench/internal/logging"
)

// ExecResult is what one executor invocation produced. Report paths point
// into the run workdir and stay readable until Release is called.
type ExecResult struct {
	// ExitCode is -1 when the process was killed before exiting normally.
	ExitCode   int
	TimedOut   bool
	DurationMs int64

	// SummaryReport and DetailedReport are absolute paths; either file may
	// be absent when the executor died early.
	SummaryReport  string
	DetailedReport string

	// Bounded stdout/stderr captures.
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool

	Workdir string
	release func() error
}

// Release frees the run's sandbox resources (for LocalExecutor, the staged
// workdir). Safe to call on a zero result and more than once.
func (r *ExecResult) Release() error {
	if r == nil || r.release == nil {
		return nil
	}
	rel := r.release
	r.release = nil
	return rel()
}

// Executor stages an execution spec into an isolated workdir, runs it
// bounded by the spec timeout, and returns the raw outcome. Execute must
// return a usable result for timeouts and nonzero exits; only failures to
// even stage or start the run are returned as errors.
type Executor interface {
	Execute(ctx context.Context, spec *assemble.ExecSpec) (*ExecResult, error)
}

func nopLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return logging.Nop()
}
