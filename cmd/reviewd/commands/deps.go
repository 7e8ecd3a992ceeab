// Package commands implements CLI command handlers for reviewd.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/config"
	"github.com/Sumatoshi-tech/reviewd/internal/gitcache"
	"github.com/Sumatoshi-tech/reviewd/internal/jobs"
	"github.com/Sumatoshi-tech/reviewd/internal/maintenance"
	"github.com/Sumatoshi-tech/reviewd/internal/observability"
	"github.com/Sumatoshi-tech/reviewd/internal/project"
	"github.com/Sumatoshi-tech/reviewd/internal/service"
	"github.com/Sumatoshi-tech/reviewd/internal/vault"
	"github.com/Sumatoshi-tech/reviewd/internal/workflow"
	"github.com/Sumatoshi-tech/reviewd/pkg/version"
)

// cacheDirName is the per-user cache subdirectory used when cache.root is
// not configured.
const cacheDirName = "reviewd"

// pipeline holds the fully wired scan stack shared by all commands.
type pipeline struct {
	cfg   *config.Config
	store *project.Store
	cache *gitcache.Cache
	vault *vault.Vault
	queue *jobs.Queue
	svc   *service.Service
	loop  *maintenance.Loop
	log   *slog.Logger
}

// buildPipeline wires the production scan stack: project store, token
// vault, repository cache, default agents, orchestrator, job queue, and
// dispatcher.
func buildPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pipeline, error) {
	store := project.NewStore()

	tokenVault, err := vault.New(store, log)
	if err != nil {
		return nil, fmt.Errorf("create token vault: %w", err)
	}

	cacheRoot, err := resolveCacheRoot(cfg.Cache.Root)
	if err != nil {
		return nil, err
	}

	client := gitcache.NewLibgitClient()

	repoCache := gitcache.New(store, tokenVault, client, &gitcache.GitHubProber{}, gitcache.Options{
		Root:    cacheRoot,
		QuotaMB: cfg.Cache.QuotaMB(),
		TTL:     cfg.Cache.TTL(),
	}, log)

	bundle := agents.Bundle{
		Fetcher:    agents.NewGitFetcher(repoCache, store, tokenVault, client, log),
		Parser:     agents.NewStructuralParser(),
		Static:     agents.NewRuleAnalyzer(),
		LLM:        agents.NewOfflineInsights(),
		Scanner:    agents.NewMetricsScanner(),
		Impact:     agents.NewGraphImpactAnalyzer(),
		Diagrammer: agents.NewEchartsDiagrammer(),
		Reporter:   agents.NewMarkdownReporter(),
	}

	orch := workflow.New(bundle, log)
	queue := jobs.New(ctx, orch, cfg.Jobs.PoolSize, log)

	svc, err := service.New(queue, log)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	loop := maintenance.New(store, repoCache, tokenVault, maintenance.Options{
		SweepInterval:  time.Duration(cfg.Maintenance.SweepIntervalHours) * time.Hour,
		SyncInterval:   time.Duration(cfg.Maintenance.SyncIntervalHours) * time.Hour,
		HealthInterval: time.Duration(cfg.Maintenance.HealthIntervalHours) * time.Hour,
		SyncBatch:      cfg.Maintenance.SyncBatch,
		QuotaMB:        cfg.Cache.QuotaMB(),
	}, log)

	return &pipeline{
		cfg:   cfg,
		store: store,
		cache: repoCache,
		vault: tokenVault,
		queue: queue,
		svc:   svc,
		loop:  loop,
		log:   log,
	}, nil
}

// resolveCacheRoot falls back to a per-user cache directory.
func resolveCacheRoot(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	userCache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}

	return filepath.Join(userCache, cacheDirName), nil
}

// initObservability builds observability providers from the loaded config.
func initObservability(cfg *config.Config, mode observability.AppMode, debug bool) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = cfg.Telemetry.SlogLevel()
	obsCfg.LogJSON = cfg.Telemetry.LogJSON

	if debug {
		obsCfg.LogLevel = slog.LevelDebug
	}

	return observability.Init(obsCfg)
}
