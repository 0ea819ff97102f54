// Package engine orchestrates one checkpoint evaluation: assemble, execute,
// parse, categorize, aggregate, evaluate, persist. Every attempted
// checkpoint yields a persisted result; assembly and executor faults are
// converted into infrastructure-failure results at this boundary, and only
// persistence failures propagate as errors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gradebench/gradebench/internal/assemble"
	"github.com/gradebench/gradebench/internal/categorize"
	"github.com/gradebench/gradebench/internal/ctrf"
	"github.com/gradebench/gradebench/internal/logging"
	"github.com/gradebench/gradebench/internal/problem"
	"github.com/gradebench/gradebench/internal/report"
	"github.com/gradebench/gradebench/internal/sandbox"
)

// Reason codes for faults detected at the runner boundary.
const (
	ReasonTimeout  = "GB_E_TIMEOUT"
	ReasonAssembly = "GB_E_ASSEMBLY"
	ReasonSandbox  = "GB_E_SANDBOX"
)

const previewBytes = 4096

// Runner evaluates single checkpoints. Zero value is not usable; Executor
// must be set.
type Runner struct {
	Executor sandbox.Executor
	Policy   report.PassPolicy
	Options  report.PolicyOptions
	Log      *slog.Logger

	// Now is injectable for tests.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logging.Nop()
}

func (r *Runner) policy() report.PassPolicy {
	if r.Policy == "" {
		return report.DefaultPolicy
	}
	return r.Policy
}

// ResultDir is where one checkpoint's artifacts live under the output root.
func ResultDir(outRoot, problemName, checkpointName string) string {
	return filepath.Join(outRoot, problemName, checkpointName)
}

// Evaluate runs the full pipeline for one checkpoint and persists the
// result under ResultDir(outRoot, ...). The returned result is always
// non-nil when err is nil.
func (r *Runner) Evaluate(ctx context.Context, outRoot string, p *problem.Problem, c *problem.Checkpoint) (*report.CorrectnessResultV1, error) {
	started := r.now()
	log := r.log().With("problem", p.Name, "checkpoint", c.Name)

	res := &report.CorrectnessResultV1{
		SchemaVersion:     report.ResultSchemaV1,
		Problem:           p.Name,
		ProblemVersion:    p.Version,
		Checkpoint:        c.Name,
		CheckpointVersion: c.Version,
		CheckpointState:   c.State,
		CreatedAt:         started.UTC().Format(time.RFC3339),
		ExitCode:          -1,
		Policy:            string(r.policy()),
	}
	var reasons []string
	infra := false

	spec, execRes := r.run(ctx, p, c, &reasons, &infra)
	defer func() { _ = execRes.Release() }()

	if spec != nil {
		res.Entrypoint = spec.Entry
	}
	var stdout, stderr string
	if execRes != nil {
		res.ExitCode = execRes.ExitCode
		stdout, stderr = execRes.Stdout, execRes.Stderr
		res.StdoutPreview = preview(stdout)
		res.StderrPreview = preview(stderr)
		if n, ok := ctrf.CollectedFromOutput(stdout); ok {
			res.Collected = n
		}
		if !execRes.TimedOut {
			r.ingest(execRes, p, c, res, &reasons, &infra)
		}
	}

	res.DurationMs = r.now().Sub(started).Milliseconds()
	res.InfrastructureFailure = infra
	res.ReasonCodes = report.NormalizeReasonCodes(reasons)
	res.Passed = r.policy().Evaluate(res.PassCounts, res.TotalCounts, infra, r.Options)

	dir := ResultDir(outRoot, p.Name, c.Name)
	if err := report.Save(dir, res, stdout, stderr); err != nil {
		return nil, fmt.Errorf("persist result for %s/%s: %w", p.Name, c.Name, err)
	}
	log.Info("checkpoint evaluated",
		"passed", res.Passed, "infra", infra,
		"tests", len(res.Tests), "exitCode", res.ExitCode, "durationMs", res.DurationMs)
	return res, nil
}

// run performs assembly and execution, accumulating fault reasons. A nil
// ExecResult means the executor was never (successfully) invoked.
func (r *Runner) run(ctx context.Context, p *problem.Problem, c *problem.Checkpoint, reasons *[]string, infra *bool) (*assemble.ExecSpec, *sandbox.ExecResult) {
	log := r.log().With("problem", p.Name, "checkpoint", c.Name)

	spec, err := assemble.Build(p, c)
	if err != nil {
		*infra = true
		var cfgErr *problem.ConfigError
		if errors.As(err, &cfgErr) {
			*reasons = append(*reasons, cfgErr.Code)
		} else {
			*reasons = append(*reasons, ReasonAssembly)
		}
		log.Warn("assembly failed", "err", err)
		return nil, nil
	}

	execRes, err := r.Executor.Execute(ctx, spec)
	if err != nil {
		*infra = true
		*reasons = append(*reasons, ReasonSandbox)
		log.Warn("executor invocation failed", "err", err)
		return spec, nil
	}
	if execRes.TimedOut {
		*infra = true
		*reasons = append(*reasons, ReasonTimeout)
		log.Warn("executor timed out", "timeout", spec.Timeout)
	}
	return spec, execRes
}

// ingest parses the reports and folds every test into the result. The
// zero-tests rule applies here: a run whose reports yield no tests is an
// infrastructure failure even when the JSON itself is valid.
func (r *Runner) ingest(execRes *sandbox.ExecResult, p *problem.Problem, c *problem.Checkpoint, res *report.CorrectnessResultV1, reasons *[]string, infra *bool) {
	if code, isInfra := ctrf.ExitReason(execRes.ExitCode); isInfra {
		*infra = true
		*reasons = append(*reasons, code)
	}

	markers := p.MarkerCategories()
	parsed, err := ctrf.ParseFiles(execRes.SummaryReport, execRes.DetailedReport, categorize.KnownMarkers(markers))
	if err != nil {
		*infra = true
		*reasons = append(*reasons, ctrf.ReasonBadReport)
		r.log().Warn("unusable test reports", "problem", p.Name, "checkpoint", c.Name, "err", err)
		return
	}

	for _, t := range parsed.Tests {
		origin := t.OriginCheckpoint
		originOrder := 0
		if origin != "" {
			if oc, ok := p.Checkpoint(origin); ok {
				originOrder = oc.Order
			} else {
				origin = ""
			}
		}
		if origin == "" {
			origin = c.Name
		}
		res.AddOutcome(report.TestOutcome{
			ID:               t.ID,
			OriginCheckpoint: origin,
			OriginOrder:      originOrder,
			Category:         categorize.Resolve(originOrder, c.Order, t.Markers, markers),
			Status:           t.Status,
			DurationMs:       t.DurationMs,
			FilePath:         t.FilePath,
			Markers:          t.Markers,
			FailureMessage:   t.FailureMessage,
		})
	}
	if len(parsed.Tests) == 0 {
		*infra = true
		*reasons = append(*reasons, ctrf.ReasonZeroTests)
	}
}

func preview(s string) string {
	if len(s) <= previewBytes {
		return s
	}
	return s[:previewBytes]
}
