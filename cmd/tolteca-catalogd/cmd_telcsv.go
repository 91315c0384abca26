package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toltec-astro/tolteca-catalog/internal/telcsv"
)

var (
	telcsvSkipExist   bool
	telcsvCreateProds bool
	telcsvCommitBatch int
)

var telcsvCmd = &cobra.Command{
	Use:   "telcsv <file>",
	Short: "Merge a telescope-metadata CSV file into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()

		ig, err := telcsv.New(ctx, store, events, cfg.LocationLabel)
		if err != nil {
			return err
		}
		stats, err := ig.IngestCSV(ctx, f, telcsv.Options{
			SkipExisting:    telcsvSkipExist,
			CreateDataProds: telcsvCreateProds,
			CommitBatchSize: telcsvCommitBatch,
		})
		if err != nil {
			return fmt.Errorf("ingest csv: %w", err)
		}
		fmt.Println(stats.String())
		return nil
	},
}

func init() {
	telcsvCmd.Flags().BoolVar(&telcsvSkipExist, "skip-existing", true, "skip rows whose source is already registered")
	telcsvCmd.Flags().BoolVar(&telcsvCreateProds, "create-data-prods", false, "create a dp_raw_obs product for quartets telcsv sees before ingest does")
	telcsvCmd.Flags().IntVar(&telcsvCommitBatch, "commit-batch-size", 100, "progress-log cadence, in sources created")
}
