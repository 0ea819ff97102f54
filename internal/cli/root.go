// Package cli wires the evaluation engine to its command-line surface.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gradebench/gradebench/internal/logging"
)

// DefaultOutRoot is where results land unless --out is given.
const DefaultOutRoot = ".gradebench"

type rootOptions struct {
	outRoot  string
	logLevel string
	logJSON  bool
}

// NewRootCmd builds the gradebench command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gradebench",
		Short:         "Score benchmark submissions against multi-checkpoint problems",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.outRoot, "out", DefaultOutRoot, "output root for results and summaries")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")

	cmd.AddCommand(newEvalCmd(opts))
	cmd.AddCommand(newBatchCmd(opts))
	cmd.AddCommand(newPoliciesCmd())
	return cmd
}

func (o *rootOptions) logger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(o.logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", o.logLevel)
	}
	return logging.New(logging.Config{Level: level, JSON: o.logJSON, Component: "gradebench"}), nil
}
