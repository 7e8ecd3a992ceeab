// Package main provides the entry point for the reviewd CLI and server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/reviewd/cmd/reviewd/commands"
	"github.com/Sumatoshi-tech/reviewd/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewd",
		Short: "Reviewd - multi-agent code review orchestration",
		Long: `Reviewd runs a multi-agent code review pipeline over git repositories
and pull requests.

Commands:
  scan      Run a one-shot scan and print the report
  serve     Start the HTTP API server
  maintain  Run cache and token maintenance tasks
  mcp       Start the MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMaintainCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "reviewd %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
