package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/reviewd/internal/config"
	"github.com/Sumatoshi-tech/reviewd/internal/jobs"
	"github.com/Sumatoshi-tech/reviewd/internal/observability"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Output formats for the scan command.
const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

// Sentinel errors for scan command argument validation.
var (
	// ErrUnknownOutputFormat indicates an unsupported --format value.
	ErrUnknownOutputFormat = errors.New("format must be table, markdown, or json")

	// ErrScanFailed indicates the scan finished in a failed state.
	ErrScanFailed = errors.New("scan failed")
)

// scanOptions holds the scan command flags.
type scanOptions struct {
	configPath   string
	repoURL      string
	scanType     string
	prID         int
	branch       string
	sourceBranch string
	targetBranch string
	format       string
	outputPath   string
	debug        bool
}

// NewScanCommand creates the one-shot scan command.
func NewScanCommand() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a one-shot scan and print the report",
		Long: `Run a full review scan of a repository or pull request and print the
report when it completes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return runScan(cobraCmd.Context(), opts, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.Flags().StringVarP(&opts.repoURL, "repo", "r", "", "repository URL to scan (required)")
	cmd.Flags().StringVarP(&opts.scanType, "type", "t", "project", "scan type: pr or project")
	cmd.Flags().IntVar(&opts.prID, "pr", 0, "pull request number for pr scans")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "branch to scan for project scans")
	cmd.Flags().StringVar(&opts.sourceBranch, "source-branch", "", "source branch of the pull request")
	cmd.Flags().StringVar(&opts.targetBranch, "target-branch", "", "target branch of the pull request")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "output format: table, markdown, or json")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func runScan(ctx context.Context, opts scanOptions, stdout io.Writer) error {
	if opts.format != formatTable && opts.format != formatMarkdown && opts.format != formatJSON {
		return fmt.Errorf("%w: %s", ErrUnknownOutputFormat, opts.format)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	providers, err := initObservability(cfg, observability.ModeCLI, opts.debug)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer shutdownObservability(providers)

	pipe, err := buildPipeline(ctx, cfg, providers.Logger)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(scan.Request{
		RepoURL:      opts.repoURL,
		ScanType:     scan.Type(opts.scanType),
		PRID:         opts.prID,
		Branch:       opts.branch,
		SourceBranch: opts.sourceBranch,
		TargetBranch: opts.targetBranch,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	accepted, err := pipe.svc.Initiate(raw)
	if err != nil {
		return err
	}

	providers.Logger.Info("scan started", "scan_id", accepted.ScanID, "repo", opts.repoURL)

	pipe.queue.Wait()

	report, markdown, err := pipe.svc.Report(accepted.ScanID)
	if err != nil {
		return fmt.Errorf("fetch report: %w", err)
	}

	out := stdout

	if opts.outputPath != "" {
		file, createErr := os.Create(opts.outputPath)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer file.Close()

		out = file
	}

	renderErr := renderReport(out, report, markdown, opts.format)
	if renderErr != nil {
		return renderErr
	}

	snapshot, err := pipe.svc.Status(accepted.ScanID)
	if err == nil && snapshot.Status == jobs.StatusFailed {
		return fmt.Errorf("%w: %s", ErrScanFailed, report.Summary.ErrorMessage)
	}

	return nil
}

func shutdownObservability(providers observability.Providers) {
	shutdownErr := providers.Shutdown(context.Background())
	if shutdownErr != nil {
		providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}
