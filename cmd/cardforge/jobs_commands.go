package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardforge/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ctx.client().ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.JobListResponse{Jobs: items})
			}

			stdout := cmd.OutOrStdout()
			rows := buildJobRows(items)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs")
				return nil
			}
			table := renderTable([]string{"ID", "Status", "Model", "Created", "Tokens"}, rows, 5)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var withStream bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "ID:        %s\n", detail.ID)
			fmt.Fprintf(stdout, "Status:    %s\n", formatStatusLabel(detail.Status))
			fmt.Fprintf(stdout, "Model:     %s\n", detail.Model)
			fmt.Fprintf(stdout, "Created:   %s\n", formatDisplayTime(detail.CreatedAt))
			if detail.StartedAt != "" {
				fmt.Fprintf(stdout, "Started:   %s\n", formatDisplayTime(detail.StartedAt))
			}
			if detail.CompletedAt != "" {
				fmt.Fprintf(stdout, "Completed: %s\n", formatDisplayTime(detail.CompletedAt))
			}
			if detail.ErrorKind != "" {
				fmt.Fprintf(stdout, "Error:     %s (%s)\n", detail.ErrorMessage, detail.ErrorKind)
			}
			if detail.TokenUsage != nil {
				fmt.Fprintf(stdout, "Tokens:    %d prompt, %d completion, %d total\n",
					detail.TokenUsage.PromptTokens, detail.TokenUsage.CompletionTokens, detail.TokenUsage.TotalTokens)
			}
			fmt.Fprintf(stdout, "Base img:  %s\n", yesNo(detail.HasBaseImage))
			fmt.Fprintf(stdout, "Result:    %s\n", yesNo(detail.HasResult))
			fmt.Fprintf(stdout, "Card img:  %s\n", yesNo(detail.HasImage))
			if withStream && detail.StreamText != "" {
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, detail.StreamText)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	cmd.Flags().BoolVar(&withStream, "with-stream", false, "Include the buffered model output")
	return cmd
}

func newStreamCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stream <job-id>",
		Short: "Follow a job's model output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			end, err := ctx.client().Stream(cmd.Context(), args[0], func(fragment string) {
				fmt.Fprint(stdout, fragment)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout)
			return reportStreamEnd(stdout, args[0], end)
		},
	}
}
