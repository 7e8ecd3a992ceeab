package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/reviewd/internal/config"
	"github.com/Sumatoshi-tech/reviewd/internal/maintenance"
	"github.com/Sumatoshi-tech/reviewd/internal/observability"
)

// Maintenance task names accepted by --task.
const (
	taskSweep  = "sweep"
	taskSync   = "sync"
	taskHealth = "health"
	taskAll    = "all"
)

// bytesPerMB converts health snapshot megabyte counts for display.
const bytesPerMB = 1024 * 1024

// ErrUnknownTask indicates an unsupported --task value.
var ErrUnknownTask = errors.New("task must be sweep, sync, health, or all")

// NewMaintainCommand creates the one-shot maintenance command.
func NewMaintainCommand() *cobra.Command {
	var (
		configPath string
		task       string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run cache and token maintenance tasks",
		Long: `Run maintenance tasks once and print their summaries as YAML.

Tasks:
  sweep   Remove expired cache trees and tokens, enforce the cache quota
  sync    Refresh stale auto-sync projects
  health  Print a cache health snapshot with recommendations
  all     Run the full cycle (sweep, sync, health)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			return runMaintain(cobraCmd.Context(), cfg, task, debug, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&task, "task", taskAll, "task to run: sweep, sync, health, or all")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func runMaintain(ctx context.Context, cfg *config.Config, task string, debug bool, out io.Writer) error {
	switch task {
	case taskSweep, taskSync, taskHealth, taskAll:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	providers, err := initObservability(cfg, observability.ModeCLI, debug)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer shutdownObservability(providers)

	pipe, err := buildPipeline(ctx, cfg, providers.Logger)
	if err != nil {
		return err
	}

	var summaries []maintenance.Summary

	switch task {
	case taskSweep:
		summaries = []maintenance.Summary{pipe.loop.CacheSweep()}
	case taskSync:
		summaries = []maintenance.Summary{pipe.loop.AutoSync(ctx)}
	case taskHealth:
		summaries = []maintenance.Summary{pipe.loop.HealthSnapshot()}
	case taskAll:
		summaries = pipe.loop.FullCycle(ctx)
	}

	encoded, err := yaml.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}

	_, writeErr := out.Write(encoded)
	if writeErr != nil {
		return fmt.Errorf("write summaries: %w", writeErr)
	}

	printCacheUsage(out, summaries)

	return nil
}

// printCacheUsage appends a human-readable cache size line when a health
// snapshot is present.
func printCacheUsage(out io.Writer, summaries []maintenance.Summary) {
	for _, summary := range summaries {
		if summary.Task != maintenance.TaskHealthSnapshot {
			continue
		}

		usedMB, ok := summary.Counts["total_cache_mb"]
		if !ok {
			continue
		}

		fmt.Fprintf(out, "# cache usage: %s\n", humanize.IBytes(uint64(usedMB)*bytesPerMB))
	}
}
