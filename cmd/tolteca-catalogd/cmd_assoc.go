package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/toltec-astro/tolteca-catalog/internal/assoc"
	"github.com/toltec-astro/tolteca-catalog/internal/config"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

var assocCommit bool

var assocCmd = &cobra.Command{
	Use:   "assoc",
	Short: "Group raw observations into calibration, drive-fit, focus, and astigmatism groups",
}

var assocGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Scan every raw observation and (re)generate group associations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		state, err := newAssocState(ctx, cfg)
		if err != nil {
			return fmt.Errorf("build association state: %w", err)
		}

		observations, err := store.ListProductsByType(ctx, model.ProductRawObs)
		if err != nil {
			return fmt.Errorf("list raw observations: %w", err)
		}
		sort.Slice(observations, func(i, j int) bool {
			return observations[i].CreatedAt.Before(observations[j].CreatedAt)
		})

		gen := assoc.New(store, state, events)
		stats, err := gen.GenerateFromBatch(ctx, observations, assocCommit, cfg.Incremental)
		if err != nil {
			return fmt.Errorf("generate associations: %w", err)
		}
		fmt.Println(stats.String())
		return nil
	},
}

// newAssocState builds the incremental state backend cfg.StateBackend
// names. The candidate-key/assoc-type table mirrors DefaultCollators
// exactly, since DBState/FSState must recognize the same group
// identities the generator's own collators produce.
func newAssocState(ctx context.Context, cfg *config.Config) (assoc.State, error) {
	switch cfg.StateBackend {
	case config.StateBackendFilesystem:
		return assoc.NewFSState(ctx, cfg.StateDir)
	default:
		types := map[model.ProductType]assoc.TypeInfo{}
		for _, c := range assoc.DefaultCollators() {
			types[c.ProductType()] = assoc.TypeInfo{
				AssocType:    c.AssocType(),
				CandidateKey: c.CandidateKey,
			}
		}
		return assoc.NewDBState(ctx, store, types)
	}
}

func init() {
	assocGenerateCmd.Flags().BoolVar(&assocCommit, "commit", true, "commit generated groups (accepted for parity; catalog writes commit per call regardless)")
	assocCmd.AddCommand(assocGenerateCmd)
}
