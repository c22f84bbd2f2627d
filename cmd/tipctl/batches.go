package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var batchesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List batches in the scratch root",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()
		rows, err := idx.ListBatches(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%-34s %-12s %8s %8s %8s %s\n", "BATCH ID", "STATUS", "TOTAL", "DONE", "ERRORS", "CREATED")
		for _, r := range rows {
			fmt.Printf("%-34s %-12s %8d %8d %8d %s\n", r.BatchID, r.Status, r.PackagesTotal, r.PackagesDone, r.PackagesError, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show one batch's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()
		row, err := idx.Batch(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("batch not found: %w", err)
		}
		fmt.Printf("batch:    %s\n", row.BatchID)
		fmt.Printf("status:   %s\n", row.Status)
		fmt.Printf("packages: %d total, %d done, %d error\n", row.PackagesTotal, row.PackagesDone, row.PackagesError)
		fmt.Printf("created:  %s\n", row.CreatedAt.Format(time.RFC3339))
		return nil
	},
}
