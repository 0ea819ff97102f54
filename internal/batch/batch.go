// Package batch drives checkpoint evaluations across many problems under a
// bounded worker pool, with idempotent skip logic and a directory lock on
// the output root so concurrent invocations cannot interleave writes.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gradebench/gradebench/internal/engine"
	"github.com/gradebench/gradebench/internal/logging"
	"github.com/gradebench/gradebench/internal/problem"
	"github.com/gradebench/gradebench/internal/report"
	"github.com/gradebench/gradebench/internal/store"
)

const lockWait = 10 * time.Second

// Options configure one batch run.
type Options struct {
	OutRoot string
	// Concurrency bounds the worker pool; <=0 runs sequentially.
	Concurrency int
	// Force re-evaluates checkpoints that already have a stored result with
	// matching versions.
	Force bool
}

// Summary is the batch-level outcome.
type Summary struct {
	BatchID   string
	Total     int
	Evaluated int
	Skipped   int
	Passed    int
	Failed    int
	// InfraFailures counts evaluated checkpoints whose result was an
	// infrastructure failure (a subset of Failed).
	InfraFailures int
}

// Scheduler fans tasks out to the checkpoint runner.
type Scheduler struct {
	Runner *engine.Runner
	Log    *slog.Logger

	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logging.Nop()
}

type task struct {
	p *problem.Problem
	c *problem.Checkpoint
}

// Run evaluates every checkpoint of every problem. Checkpoint-level faults
// become infrastructure-failure results and never abort the batch; only
// persistence failures and context cancellation do. Each processed
// checkpoint appends one line to <outRoot>/summary.jsonl, including skipped
// ones re-emitted from their stored result.
func (s *Scheduler) Run(ctx context.Context, batchID string, problems []*problem.Problem, opts Options) (*Summary, error) {
	var tasks []task
	for _, p := range problems {
		for _, c := range p.Checkpoints() {
			tasks = append(tasks, task{p: p, c: c})
		}
	}

	sum := &Summary{BatchID: batchID, Total: len(tasks)}
	var mu sync.Mutex

	lockDir := filepath.Join(opts.OutRoot, ".lock")
	err := store.WithDirLock(lockDir, lockWait, func() error {
		g, gctx := errgroup.WithContext(ctx)
		if opts.Concurrency > 0 {
			g.SetLimit(opts.Concurrency)
		} else {
			g.SetLimit(1)
		}
		for _, t := range tasks {
			t := t
			g.Go(func() error {
				return s.runOne(gctx, batchID, t, opts, sum, &mu)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return sum, err
	}
	s.log().Info("batch done",
		"batch", batchID, "total", sum.Total, "evaluated", sum.Evaluated,
		"skipped", sum.Skipped, "passed", sum.Passed, "failed", sum.Failed,
		"infraFailures", sum.InfraFailures)
	return sum, nil
}

func (s *Scheduler) runOne(ctx context.Context, batchID string, t task, opts Options, sum *Summary, mu *sync.Mutex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.log().With("problem", t.p.Name, "checkpoint", t.c.Name)

	if stored, ok := s.reusable(t, opts); ok {
		log.Info("checkpoint skipped", "reason", "stored result matches versions")
		rec := report.Summarize(stored, batchID, true, s.now().UTC().Format(time.RFC3339))
		if err := report.AppendSummary(opts.OutRoot, rec); err != nil {
			return fmt.Errorf("append summary for %s/%s: %w", t.p.Name, t.c.Name, err)
		}
		mu.Lock()
		sum.Skipped++
		if stored.Passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
		mu.Unlock()
		return nil
	}

	res, err := s.Runner.Evaluate(ctx, opts.OutRoot, t.p, t.c)
	if err != nil {
		return err
	}
	rec := report.Summarize(res, batchID, false, res.CreatedAt)
	if err := report.AppendSummary(opts.OutRoot, rec); err != nil {
		return fmt.Errorf("append summary for %s/%s: %w", t.p.Name, t.c.Name, err)
	}

	mu.Lock()
	sum.Evaluated++
	if res.Passed {
		sum.Passed++
	} else {
		sum.Failed++
	}
	if res.InfrastructureFailure {
		sum.InfraFailures++
	}
	mu.Unlock()
	return nil
}

// reusable applies the skip rule: a stored result is reused only when both
// the problem and checkpoint versions match and the caller did not force.
// A version mismatch always re-evaluates.
func (s *Scheduler) reusable(t task, opts Options) (*report.CorrectnessResultV1, bool) {
	if opts.Force {
		return nil, false
	}
	dir := engine.ResultDir(opts.OutRoot, t.p.Name, t.c.Name)
	if !report.Exists(dir) {
		return nil, false
	}
	stored, err := report.Load(dir)
	if err != nil {
		s.log().Warn("stored result unreadable, re-evaluating",
			"problem", t.p.Name, "checkpoint", t.c.Name, "err", err)
		return nil, false
	}
	if stored.ProblemVersion != t.p.Version || stored.CheckpointVersion != t.c.Version {
		return nil, false
	}
	return stored, true
}
