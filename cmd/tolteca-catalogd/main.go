// Package main implements tolteca-catalogd, the catalog daemon's
// command-line front end.
//
// This file is the entry point and command registration hub; the
// individual subcommands are split across the other cmd_*.go files in
// this package.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go            - Entry point, rootCmd, global flags, init()
//
// Schema & Bootstrap:
//   - cmd_init.go        - initCmd: create tables, seed registries
//
// Ingestion:
//   - cmd_ingest.go      - ingestCmd, ingestDirectoryCmd
//   - cmd_telcsv.go      - telcsvCmd
//
// Association:
//   - cmd_assoc.go       - assocCmd, assocGenerateCmd
//
// Query:
//   - cmd_obs.go         - obsCmd, obsGetCmd, obsLatestCmd
//
// Completion Detection:
//   - cmd_completion.go  - completionCmd, completionWatchCmd
//   - registry_sqlite.go - sqliteRegistry, the acquisition-registry adapter
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toltec-astro/tolteca-catalog/internal/catalog"
	"github.com/toltec-astro/tolteca-catalog/internal/config"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
)

var (
	// Global flags
	configPath string

	// Resolved at PersistentPreRunE time
	cfg    *config.Config
	store  *catalog.Store
	events *eventlog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tolteca-catalogd",
	Short: "TolTEC data catalog daemon",
	Long: `tolteca-catalogd tracks, associates, and serves TolTEC raw and
reduced data products: schema bootstrap, file ingestion, telescope
metadata merge, group association, and observation spec queries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}

		opened, err := catalog.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		store = opened
		events = eventlog.New(store)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tolteca-catalogd.yaml", "path to the daemon config file")

	rootCmd.AddCommand(
		initCmd,
		ingestCmd,
		telcsvCmd,
		assocCmd,
		obsCmd,
		completionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
