package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradebench/gradebench/internal/report"
)

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List available pass policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range report.Policies() {
				marker := " "
				if p == report.DefaultPolicy {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "(* default)")
			return nil
		},
	}
}
