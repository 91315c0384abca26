package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toltec-astro/tolteca-catalog/internal/ingest"
)

var (
	ingestMaster      string
	ingestNetworkID   int
	ingestPattern     string
	ingestRecursive   bool
	ingestSkipExist   bool
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest raw observation files into the catalog",
}

var ingestDirectoryCmd = &cobra.Command{
	Use:   "directory <path>",
	Short: "Scan a directory and ingest every matching file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ig, err := ingest.New(ctx, store, events, cfg.LocationLabel, ingestMaster, ingestNetworkID)
		if err != nil {
			return err
		}
		stats, err := ig.IngestDirectory(ctx, args[0], ingest.DirectoryOptions{
			Pattern:        ingestPattern,
			Recursive:      ingestRecursive,
			SkipExisting:   ingestSkipExist,
			CommitInterval: cfg.CommitInterval,
			Concurrency:    ingestConcurrency,
		})
		if err != nil {
			return fmt.Errorf("ingest directory: %w", err)
		}
		fmt.Println(stats.String())
		return nil
	},
}

func init() {
	ingestDirectoryCmd.Flags().StringVar(&ingestMaster, "master", "tcs", "observation master label")
	ingestDirectoryCmd.Flags().IntVar(&ingestNetworkID, "network-id", 0, "ROACH network id attributed to ingested sources")
	ingestDirectoryCmd.Flags().StringVar(&ingestPattern, "pattern", "*.nc", "base-name glob for files to ingest")
	ingestDirectoryCmd.Flags().BoolVar(&ingestRecursive, "recursive", true, "recurse into subdirectories")
	ingestDirectoryCmd.Flags().BoolVar(&ingestSkipExist, "skip-existing", true, "skip files already registered as sources")
	ingestDirectoryCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "number of files ingested in parallel")

	ingestCmd.AddCommand(ingestDirectoryCmd)
}
