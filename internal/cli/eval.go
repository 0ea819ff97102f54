package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gradebench/gradebench/internal/batch"
	"github.com/gradebench/gradebench/internal/engine"
	"github.com/gradebench/gradebench/internal/ids"
	"github.com/gradebench/gradebench/internal/problem"
	"github.com/gradebench/gradebench/internal/report"
	"github.com/gradebench/gradebench/internal/sandbox"
)

type evalOptions struct {
	problemDir       string
	checkpoint       string
	policy           string
	requireCoreTests bool
	force            bool
	keepWorkdirs     bool
}

func newEvalCmd(root *rootOptions) *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one problem (optionally a single checkpoint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.problemDir, "problem", "", "problem definition directory (required)")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "evaluate only this checkpoint")
	cmd.Flags().StringVar(&opts.policy, "policy", string(report.DefaultPolicy), "pass policy")
	cmd.Flags().BoolVar(&opts.requireCoreTests, "require-core-tests", false, "fail core policies when a checkpoint has zero Core tests")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-evaluate even when a stored result matches")
	cmd.Flags().BoolVar(&opts.keepWorkdirs, "keep-workdirs", false, "keep sandbox workdirs for debugging")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

func runEval(cmd *cobra.Command, root *rootOptions, opts *evalOptions) error {
	log, err := root.logger()
	if err != nil {
		return err
	}
	policy, err := report.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}
	p, err := problem.Load(opts.problemDir)
	if err != nil {
		return err
	}

	runner := &engine.Runner{
		Executor: &sandbox.LocalExecutor{KeepWorkdirs: opts.keepWorkdirs, Log: log},
		Policy:   policy,
		Options:  report.PolicyOptions{RequireCoreTests: opts.requireCoreTests},
		Log:      log,
	}

	batchID := ids.NewBatchID(time.Now())
	if opts.checkpoint != "" {
		c, ok := p.Checkpoint(opts.checkpoint)
		if !ok {
			return fmt.Errorf("problem %s has no checkpoint %q", p.Name, opts.checkpoint)
		}
		res, err := runner.Evaluate(cmd.Context(), root.outRoot, p, c)
		if err != nil {
			return err
		}
		rec := report.Summarize(res, batchID, false, res.CreatedAt)
		if err := report.AppendSummary(root.outRoot, rec); err != nil {
			return err
		}
		return printVerdict(cmd, res.Problem, res.Checkpoint, res.Passed, res.InfrastructureFailure)
	}

	sched := &batch.Scheduler{Runner: runner, Log: log}
	sum, err := sched.Run(cmd.Context(), batchID, []*problem.Problem{p}, batch.Options{
		OutRoot: root.outRoot,
		Force:   opts.force,
	})
	if err != nil {
		return err
	}
	return printBatchSummary(cmd, sum)
}

func printVerdict(cmd *cobra.Command, problemName, checkpointName string, passed, infra bool) error {
	verdict := "FAIL"
	if passed {
		verdict = "PASS"
	}
	if infra {
		verdict += " (infrastructure failure)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s\n", problemName, checkpointName, verdict)
	if !passed {
		return fmt.Errorf("checkpoint %s/%s did not pass", problemName, checkpointName)
	}
	return nil
}

func printBatchSummary(cmd *cobra.Command, sum *batch.Summary) error {
	fmt.Fprintf(cmd.OutOrStdout(),
		"batch %s: %d checkpoints, %d evaluated, %d skipped, %d passed, %d failed (%d infrastructure)\n",
		sum.BatchID, sum.Total, sum.Evaluated, sum.Skipped, sum.Passed, sum.Failed, sum.InfraFailures)
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d checkpoints failed", sum.Failed, sum.Total)
	}
	return nil
}
