package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gradebench/gradebench/internal/assemble"
)

const defaultMaxCaptureBytes = 256 * 1024

// LocalExecutor runs evaluations as local subprocesses, one throwaway
// workdir per invocation.
type LocalExecutor struct {
	// Root hosts the per-run workdirs; empty uses the system temp dir.
	Root string
	// MaxCaptureBytes bounds each captured stream; <=0 uses the default.
	MaxCaptureBytes int
	// KeepWorkdirs disables workdir removal on Release, for debugging.
	KeepWorkdirs bool
	Log          *slog.Logger
}

// Execute stages the spec's test and config files into a fresh workdir and
// runs the executor argv there, killed at the spec timeout. The workdir is
// owned by the returned result and removed on Release.
func (e *LocalExecutor) Execute(ctx context.Context, spec *assemble.ExecSpec) (*ExecResult, error) {
	log := nopLogger(e.Log)

	workdir, err := os.MkdirTemp(e.Root, "gradebench-run-")
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	res := &ExecResult{
		ExitCode: -1,
		Workdir:  workdir,
		release: func() error {
			if e.KeepWorkdirs {
				return nil
			}
			return os.RemoveAll(workdir)
		},
	}
	if err := stage(workdir, spec); err != nil {
		_ = res.Release()
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = mergedEnviron(spec.Env)
	cmd.Stdin = nil

	max := e.MaxCaptureBytes
	if max <= 0 {
		max = defaultMaxCaptureBytes
	}
	outCap := &boundedCapture{max: max}
	errCap := &boundedCapture{max: max}

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		_ = res.Release()
		return nil, err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		_ = res.Release()
		return nil, err
	}

	start := time.Now()
	log.Debug("executor start", "problem", spec.Problem, "checkpoint", spec.Checkpoint, "workdir", workdir)
	if err := cmd.Start(); err != nil {
		_ = res.Release()
		return nil, fmt.Errorf("start executor: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(outCap, outPipe)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(errCap, errPipe)
	}()

	waitErr := cmd.Wait()
	wg.Wait()
	res.DurationMs = time.Since(start).Milliseconds()
	res.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)

	if waitErr == nil {
		res.ExitCode = 0
	} else {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			res.ExitCode = ee.ExitCode()
		} else if !res.TimedOut {
			_ = res.Release()
			return nil, waitErr
		}
	}

	res.Stdout, res.StdoutTruncated = outCap.snapshot()
	res.Stderr, res.StderrTruncated = errCap.snapshot()
	res.SummaryReport = filepath.Join(workdir, spec.SummaryReport)
	res.DetailedReport = filepath.Join(workdir, spec.DetailedReport)

	log.Debug("executor done",
		"problem", spec.Problem, "checkpoint", spec.Checkpoint,
		"exitCode", res.ExitCode, "timedOut", res.TimedOut, "durationMs", res.DurationMs)
	return res, nil
}

func stage(workdir string, spec *assemble.ExecSpec) error {
	for _, f := range spec.TestFiles {
		b, err := os.ReadFile(f.Source)
		if err != nil {
			return fmt.Errorf("stage test file %s: %w", f.Source, err)
		}
		dest := filepath.Join(workdir, f.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("stage test file %s: %w", f.Name, err)
		}
		if err := os.WriteFile(dest, b, 0o644); err != nil {
			return fmt.Errorf("stage test file %s: %w", f.Name, err)
		}
	}
	for name, content := range spec.ConfigFiles {
		if err := os.WriteFile(filepath.Join(workdir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("stage config file %s: %w", name, err)
		}
	}
	return nil
}

// mergedEnviron layers spec variables over the parent environment, sorted
// for stable process invocations.
func mergedEnviron(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

type boundedCapture struct {
	max int
	mu  sync.Mutex
	buf bytes.Buffer

	truncated bool
}

func (c *boundedCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.max - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	_, _ = c.buf.Write(p)
	return len(p), nil
}

func (c *boundedCapture) snapshot() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String(), c.truncated
}
