package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardforge/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", ctx.serverAddress(), err)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			runningKind := statusOK
			runningMsg := fmt.Sprintf("pid %d", status.PID)
			if !status.Running {
				runningKind = statusError
				runningMsg = ""
			}
			fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, runningMsg, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Data dir", statusInfo, status.DataDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Worker slots", statusInfo, fmt.Sprintf("%d", status.WorkerSlots), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Retention", statusInfo, fmt.Sprintf("keep %d jobs", status.KeepMax), colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildJobCountRows(status.Jobs)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, 2)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func buildJobCountRows(counts api.JobCounts) [][]string {
	if counts.Total == 0 {
		return nil
	}
	rows := [][]string{
		{"Pending", fmt.Sprintf("%d", counts.Pending)},
		{"Running", fmt.Sprintf("%d", counts.Running)},
		{"Completed", fmt.Sprintf("%d", counts.Completed)},
		{"Failed", fmt.Sprintf("%d", counts.Failed)},
		{"Total", fmt.Sprintf("%d", counts.Total)},
	}
	return rows
}
