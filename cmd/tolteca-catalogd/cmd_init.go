package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the catalog schema and seed registry tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := store.CreateTables(ctx); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		if err := store.PopulateRegistryTables(ctx, cfg.LocationLabel, cfg.LocationRootURI); err != nil {
			return fmt.Errorf("populate registry tables: %w", err)
		}
		fmt.Printf("catalog initialized: kind=%s location=%s\n", store.Kind(), cfg.LocationLabel)
		return nil
	},
}
