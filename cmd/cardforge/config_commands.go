package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cardforge/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			written, err := config.WriteSample(target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", written)
			fmt.Fprintln(out, "Edit the file to set llm.api_key before starting cardforged.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			} else {
				fmt.Fprintf(out, "Config path: %s\n", path)
			}
			if cfg.LLM.APIKey == "" {
				fmt.Fprintln(out, "Warning: llm.api_key is not set")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "file", "f", "", "Configuration file to validate")
	return cmd
}
