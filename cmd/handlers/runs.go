package handlers

import (
	"fmt"

	"imgcluster/internal/report"

	"github.com/spf13/cobra"
)

// NewRunsCmd creates the runs command
func NewRunsCmd() *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent clustering runs",
		Long:  `Show the run history recorded in the cache database, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			runs, err := st.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			report.RunsTable(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	runsCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return runsCmd
}
