// Command tipctl is a local diagnostics CLI over a scratch root: it rebuilds
// a sqlite index cache and lists jobs and batches from it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	scratchRoot string
	indexPath   string
)

var rootCmd = &cobra.Command{
	Use:   "tipctl",
	Short: "Inspect job and batch state in a tipificador scratch root",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scratchRoot, "root", envOr("TIPIFICADOR_ROOT", "/tmp/tipificador_jobs"), "scratch root to inspect")
	rootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "path to the sqlite index cache (default: <root>/.tipctl/index.db)")

	jobsCmd.AddCommand(jobsLsCmd, jobsSweepCmd)
	batchesCmd.AddCommand(batchesLsCmd, batchesShowCmd)
	rootCmd.AddCommand(jobsCmd, batchesCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect admitted jobs",
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect batches",
}
