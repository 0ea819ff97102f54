package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gradebench/gradebench/internal/batch"
	"github.com/gradebench/gradebench/internal/engine"
	"github.com/gradebench/gradebench/internal/ids"
	"github.com/gradebench/gradebench/internal/problem"
	"github.com/gradebench/gradebench/internal/report"
	"github.com/gradebench/gradebench/internal/sandbox"
)

type batchOptions struct {
	problemsRoot     string
	concurrency      int
	policy           string
	requireCoreTests bool
	force            bool
	keepWorkdirs     bool
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate every problem under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.problemsRoot, "problems", "", "directory of problem definition directories (required)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "worker pool size")
	cmd.Flags().StringVar(&opts.policy, "policy", string(report.DefaultPolicy), "pass policy")
	cmd.Flags().BoolVar(&opts.requireCoreTests, "require-core-tests", false, "fail core policies when a checkpoint has zero Core tests")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-evaluate even when stored results match")
	cmd.Flags().BoolVar(&opts.keepWorkdirs, "keep-workdirs", false, "keep sandbox workdirs for debugging")
	_ = cmd.MarkFlagRequired("problems")
	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, opts *batchOptions) error {
	log, err := root.logger()
	if err != nil {
		return err
	}
	policy, err := report.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}
	problems, err := discoverProblems(opts.problemsRoot)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		return fmt.Errorf("no problem definitions under %s", opts.problemsRoot)
	}

	runner := &engine.Runner{
		Executor: &sandbox.LocalExecutor{KeepWorkdirs: opts.keepWorkdirs, Log: log},
		Policy:   policy,
		Options:  report.PolicyOptions{RequireCoreTests: opts.requireCoreTests},
		Log:      log,
	}
	sched := &batch.Scheduler{Runner: runner, Log: log}
	sum, err := sched.Run(cmd.Context(), ids.NewBatchID(time.Now()), problems, batch.Options{
		OutRoot:     root.outRoot,
		Concurrency: opts.concurrency,
		Force:       opts.force,
	})
	if err != nil {
		return err
	}
	return printBatchSummary(cmd, sum)
}

// discoverProblems loads every direct subdirectory containing a problem
// definition file, in name order for stable batch composition.
func discoverProblems(rootDir string) ([]*problem.Problem, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		def := filepath.Join(rootDir, e.Name(), problem.DefinitionFile)
		if _, err := os.Stat(def); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	problems := make([]*problem.Problem, 0, len(names))
	for _, name := range names {
		p, err := problem.Load(filepath.Join(rootDir, name))
		if err != nil {
			return nil, fmt.Errorf("load problem %s: %w", name, err)
		}
		problems = append(problems, p)
	}
	return problems, nil
}
