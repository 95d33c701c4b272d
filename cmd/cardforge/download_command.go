package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cardforge/internal/client"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var imageOnly bool
	var resultOnly bool

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a completed job's card document and image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if imageOnly && resultOnly {
				return fmt.Errorf("--image-only and --result-only are mutually exclusive")
			}
			id := args[0]
			c := ctx.client()
			stdout := cmd.OutOrStdout()

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			if !imageOnly {
				data, err := c.DownloadResult(cmd.Context(), id)
				if err != nil {
					return describeDownloadError(id, err)
				}
				path := filepath.Join(outputDir, id+".json")
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(stdout, "Wrote %s\n", path)
			}
			if !resultOnly {
				data, err := c.DownloadImage(cmd.Context(), id)
				if err != nil {
					return describeDownloadError(id, err)
				}
				path := filepath.Join(outputDir, id+".png")
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(stdout, "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the artifacts into")
	cmd.Flags().BoolVar(&imageOnly, "image-only", false, "Download only the card PNG")
	cmd.Flags().BoolVar(&resultOnly, "result-only", false, "Download only the card document")
	return cmd
}

func describeDownloadError(id string, err error) error {
	switch {
	case client.IsNotFound(err):
		return fmt.Errorf("job %s not found", id)
	case client.IsNotReady(err):
		return fmt.Errorf("job %s has not completed yet", id)
	default:
		return err
	}
}
