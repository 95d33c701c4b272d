package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cardforge/internal/api"
	"cardforge/internal/jobs"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var imagePath string
	var follow bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "create [input-file]",
		Short: "Submit a character description for conversion",
		Long: "Submit a legacy character description to the daemon. The input is read " +
			"from the given file, or from stdin when no file is supplied.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readCreateInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var image []byte
			if path := strings.TrimSpace(imagePath); path != "" {
				image, err = os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read base image: %w", err)
				}
			}

			c := ctx.client()
			job, err := c.CreateJob(cmd.Context(), input, image)
			if err != nil {
				return err
			}
			if asJSON && !follow {
				return writeJSON(cmd, job)
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Job %s accepted\n", job.ID)
			if !follow {
				return nil
			}

			end, err := c.Stream(cmd.Context(), job.ID, func(fragment string) {
				fmt.Fprint(stdout, fragment)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout)
			return reportStreamEnd(stdout, job.ID, end)
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "PNG to use as the card's base image")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream model output until the job finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the created job as JSON")
	return cmd
}

func readCreateInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("input is empty; pass a file or pipe a description on stdin")
	}
	return string(data), nil
}

func reportStreamEnd(out io.Writer, id string, end api.StreamEnd) error {
	if end.Status == string(jobs.StatusCompleted) {
		fmt.Fprintf(out, "Job %s completed\n", id)
		return nil
	}
	if end.Error != "" {
		return fmt.Errorf("job %s failed: %s", id, end.Error)
	}
	return fmt.Errorf("job %s ended with status %s", id, end.Status)
}
