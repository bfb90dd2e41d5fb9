package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vpetrenko/failtriage/internal/extract"
	"github.com/vpetrenko/failtriage/internal/pipeline"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <launch-id>",
	Short: "Delete comments written by earlier runs for a launch's test cases",
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

		results, err := d.client.ListTestResults(cmd.Context(), launchID)
		if err != nil {
			return err
		}

		seen := make(map[int64]struct{})
		var testCaseIDs []int64
		for _, r := range results {
			if !extract.NormalizeStatus(r.Status).IsFailure() || r.TestCaseID == nil {
				continue
			}
			if _, ok := seen[*r.TestCaseID]; ok {
				continue
			}
			seen[*r.TestCaseID] = struct{}{}
			testCaseIDs = append(testCaseIDs, *r.TestCaseID)
		}

		cleaner := pipeline.NewCleaner(d.client, d.cfg.TestOps.DetailConcurrency)
		report, err := cleaner.Cleanup(cmd.Context(), testCaseIDs, cleanupDryRun)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "count matching comments without deleting")
}
