package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/reviewd/internal/config"
	"github.com/Sumatoshi-tech/reviewd/internal/mcp"
	"github.com/Sumatoshi-tech/reviewd/internal/observability"
	"github.com/Sumatoshi-tech/reviewd/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the scan pipeline as tools that AI agents can
discover and invoke:
  - initiate_scan: Start a repository or pull request scan
  - scan_status:   Poll scan progress
  - scan_report:   Retrieve the finished report
  - cancel_scan:   Cancel a pending or running scan`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			// Logs must go to stderr as JSON; stdout carries the protocol.
			cfg.Telemetry.LogJSON = true

			providers, err := initObservability(cfg, observability.ModeMCP, debug)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer shutdownObservability(providers)

			pipe, err := buildPipeline(cobraCmd.Context(), cfg, providers.Logger)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Service: pipe.svc,
				Logger:  providers.Logger,
				Version: version.Version,
			})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")

	return cmd
}
