package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// writeJSON prints v as two-space-indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
