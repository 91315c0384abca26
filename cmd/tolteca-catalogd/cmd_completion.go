package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/completion"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
)

var completionCursorPath string

var completionCmd = &cobra.Command{
	Use:   "completion",
	Short: "Detect when an observation quartet has finished acquiring across all its interfaces",
}

var completionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the acquisition registry and emit completion events as quartets finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RegistryURL == "" {
			return fmt.Errorf("registry_url is not configured; completion watch has nothing to poll")
		}

		registry, err := openRegistry(cfg.RegistryURL, cfg.RegistryTable)
		if err != nil {
			return err
		}
		defer registry.Close()

		var cursors completion.CursorStore
		if completionCursorPath != "" {
			cursors = completion.NewFileCursorStore(completionCursorPath)
		} else {
			cursors = completion.NewMemoryCursorStore()
		}

		detector := completion.New(registry, store, cursors, events, completion.Config{
			ValidationTimeout:  cfg.ValidationTimeout(),
			MaxInterfaceCount:  cfg.MaxInterfaceCount,
			DisabledInterfaces: cfg.DisabledInterfaceSet(),
			BatchSize:          cfg.BatchSize,
		})

		zl := logging.Get(logging.ComponentCLI)
		ctx := cmd.Context()
		ticker := time.NewTicker(cfg.SensorPollInterval())
		defer ticker.Stop()

		for {
			emitted, err := detector.Tick(ctx)
			if err != nil {
				return fmt.Errorf("completion tick: %w", err)
			}
			for _, ev := range emitted {
				fmt.Printf("%s %s-%d-%d-%d valid=%d/%d reason=%s\n",
					ev.ObsDate, ev.Master, ev.Obsnum, ev.Subobsnum, ev.Scannum,
					ev.ValidCount, ev.ExpectedCount, ev.CompletionReason)
			}
			zl.Debug("completion tick complete", zap.Int("events", len(emitted)))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	},
}

func init() {
	completionWatchCmd.Flags().StringVar(&completionCursorPath, "cursor-file", "", "persist the poll cursor to this path (default: in-memory, lost on restart)")
	completionCmd.AddCommand(completionWatchCmd)
}
