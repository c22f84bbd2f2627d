package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/local/tipificador/internal/localindex"
	"github.com/local/tipificador/internal/scratch"
)

func resolveIndexPath() string {
	if indexPath != "" {
		return indexPath
	}
	return filepath.Join(scratchRoot, ".tipctl", "index.db")
}

func openIndex() (*localindex.Index, error) {
	idx, err := localindex.Open(resolveIndexPath(), scratchRoot)
	if err != nil {
		return nil, err
	}
	if err := idx.Rebuild(context.Background()); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs in the scratch root",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()
		rows, err := idx.ListJobs(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%-34s %8s %12s %s\n", "JOB ID", "PAGES", "CLASSIFIED", "CREATED")
		for _, r := range rows {
			fmt.Printf("%-34s %8d %12d %s\n", r.JobID, r.TotalPages, r.ClassifiedPages, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var sweepTTL string

var jobsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove job directories older than the given TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, err := time.ParseDuration(sweepTTL)
		if err != nil {
			return fmt.Errorf("invalid --ttl: %w", err)
		}
		store := scratch.New(scratchRoot)
		store.Sweep(ttl)
		fmt.Println("sweep complete")
		return nil
	},
}

func init() {
	jobsSweepCmd.Flags().StringVar(&sweepTTL, "ttl", "6h", "jobs older than this are removed")
}
