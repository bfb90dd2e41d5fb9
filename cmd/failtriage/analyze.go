package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <launch-id>",
	Short: "Triage, cluster and analyze the failures of one launch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		launchID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || launchID <= 0 {
			return fmt.Errorf("launch-id must be a positive integer, got %q", args[0])
		}

		d, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.close()

		report, err := d.runner.Run(cmd.Context(), launchID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
