package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/reviewd/internal/config"
	"github.com/Sumatoshi-tech/reviewd/internal/observability"
	"github.com/Sumatoshi-tech/reviewd/internal/service"
)

// jobSweepInterval is how often terminal jobs are checked against the
// retention window.
const jobSweepInterval = time.Hour

// NewServeCommand creates the HTTP server command.
func NewServeCommand() *cobra.Command {
	var (
		configPath string
		listenAddr string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the long-running HTTP API server.

Endpoints:
  POST /api/scans              Initiate a scan
  GET  /api/scans/{id}/status  Poll scan status
  GET  /api/scans/{id}/report  Fetch the finished report
  POST /api/scans/{id}/cancel  Cancel a scan
  GET  /healthz                Liveness probe
  GET  /metrics                Prometheus metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}

			return runServe(cobraCmd.Context(), cfg, debug)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&listenAddr, "addr", "", "listen address override")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func runServe(parentCtx context.Context, cfg *config.Config, debug bool) error {
	providers, err := initObservability(cfg, observability.ModeServe, debug)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer shutdownObservability(providers)

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := buildPipeline(ctx, cfg, providers.Logger)
	if err != nil {
		return err
	}

	go pipe.loop.Run(ctx)
	go sweepJobs(ctx, pipe, cfg)

	server := &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     service.Handler(pipe.svc, providers.Logger),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		providers.Logger.Info("http server listening", "addr", cfg.Server.ListenAddr)

		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr
		}

		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	providers.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("shutdown http server: %w", shutdownErr)
	}

	pipe.queue.Wait()

	return nil
}

// sweepJobs periodically drops terminal jobs past the retention window.
func sweepJobs(ctx context.Context, pipe *pipeline, cfg *config.Config) {
	ticker := time.NewTicker(jobSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := pipe.queue.SweepOld(cfg.Jobs.Retention())
			if removed > 0 {
				pipe.log.Info("job retention sweep", "removed", removed)
			}
		}
	}
}
