// Package maintenance runs the periodic housekeeping tasks: cache and token
// sweeps, quota enforcement, auto-sync of stale project caches, and a health
// snapshot with actionable recommendations. Every task is individually
// callable and failures in one never block the others.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/reviewd/internal/gitcache"
	"github.com/Sumatoshi-tech/reviewd/internal/project"
	"github.com/Sumatoshi-tech/reviewd/internal/vault"
)

// Default cadences and tuning.
const (
	DefaultSweepInterval  = 6 * time.Hour
	DefaultSyncInterval   = time.Hour
	DefaultHealthInterval = 4 * time.Hour

	// DefaultSyncBatch caps how many projects one auto-sync pass touches
	// before pausing.
	DefaultSyncBatch = 10

	// DefaultSyncDelay is the pause between individual syncs so remote
	// hosts are not hammered.
	DefaultSyncDelay = 2 * time.Second

	// staleAfter is the sync age beyond which auto-sync refreshes a cache.
	staleAfter = time.Hour

	// lowEfficiencyPct is the cache-efficiency floor below which the
	// health snapshot recommends attention.
	lowEfficiencyPct = 50.0
)

// Task status values in summaries.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task names in summaries.
const (
	TaskCacheSweep     = "cache_sweep"
	TaskAutoSync       = "auto_sync"
	TaskHealthSnapshot = "health_snapshot"
)

// Summary is the structured result of one maintenance task.
type Summary struct {
	Task            string         `json:"task" yaml:"task"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
	Status          string         `json:"status" yaml:"status"`
	Counts          map[string]int `json:"counts" yaml:"counts"`
	Error           string         `json:"error,omitempty" yaml:"error,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// Options tunes the loop. Zero values select the defaults.
type Options struct {
	SweepInterval  time.Duration
	SyncInterval   time.Duration
	HealthInterval time.Duration
	SyncBatch      int
	SyncDelay      time.Duration
	QuotaMB        float64
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}

	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}

	if o.HealthInterval <= 0 {
		o.HealthInterval = DefaultHealthInterval
	}

	if o.SyncBatch <= 0 {
		o.SyncBatch = DefaultSyncBatch
	}

	if o.SyncDelay < 0 {
		o.SyncDelay = DefaultSyncDelay
	}

	if o.QuotaMB <= 0 {
		o.QuotaMB = gitcache.DefaultQuotaMB
	}

	return o
}

// Loop owns the periodic tasks. It mutates Project rows only, never jobs.
type Loop struct {
	store *project.Store
	cache *gitcache.Cache
	vault *vault.Vault
	log   *slog.Logger
	opts  Options

	now   func() time.Time
	sleep func(time.Duration)
}

// New wires a maintenance loop.
func New(store *project.Store, cache *gitcache.Cache, tokenVault *vault.Vault, opts Options, log *slog.Logger) *Loop {
	return &Loop{
		store: store,
		cache: cache,
		vault: tokenVault,
		log:   log,
		opts:  opts.withDefaults(),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// CacheSweep removes expired cache trees and tokens, then enforces the
// cache quota.
func (l *Loop) CacheSweep() Summary {
	summary := l.newSummary(TaskCacheSweep)

	summary.Counts["expired_caches_removed"] = l.cache.SweepExpired()
	summary.Counts["expired_tokens_removed"] = l.vault.SweepExpired()
	summary.Counts["quota_evictions"] = l.cache.EnforceQuota()

	l.log.Info("cache sweep finished",
		"expired_caches", summary.Counts["expired_caches_removed"],
		"expired_tokens", summary.Counts["expired_tokens_removed"],
		"quota_evictions", summary.Counts["quota_evictions"])

	return summary
}

// AutoSync refreshes caches of auto-sync projects whose last sync is stale,
// in batches with a pause between syncs.
func (l *Loop) AutoSync(ctx context.Context) Summary {
	summary := l.newSummary(TaskAutoSync)

	due := l.dueForSync()
	summary.Counts["due"] = len(due)

	if len(due) > l.opts.SyncBatch {
		due = due[:l.opts.SyncBatch]
	}

	for i, proj := range due {
		if ctx.Err() != nil {
			summary.Status = StatusFailed
			summary.Error = fmt.Sprintf("auto-sync interrupted: %v", ctx.Err())

			break
		}

		if i > 0 {
			l.sleep(l.opts.SyncDelay)
		}

		if _, err := l.cache.Acquire(ctx, proj.ID, ""); err != nil {
			summary.Counts["failed"]++

			l.log.Warn("auto-sync failed", "project_id", proj.ID, "error", err)

			continue
		}

		summary.Counts["synced"]++
	}

	return summary
}

// dueForSync lists auto-sync projects whose last sync is older than the
// staleness window, oldest first.
func (l *Loop) dueForSync() []project.Project {
	cutoff := l.now().Add(-staleAfter)

	var due []project.Project

	for _, proj := range l.store.All() {
		if proj.AutoSyncEnabled && proj.LastSyncedAt.Before(cutoff) {
			due = append(due, proj)
		}
	}

	return due
}

// HealthSnapshot computes and logs the project/cache/token counters and
// emits recommendations when thresholds are exceeded.
func (l *Loop) HealthSnapshot() Summary {
	summary := l.newSummary(TaskHealthSnapshot)

	now := l.now()
	projects := l.store.All()

	var cached, withTokens, expiredCaches, expiredTokens int

	for _, proj := range projects {
		if proj.HasCache() {
			cached++

			if proj.CacheExpired(now) {
				expiredCaches++
			}
		}

		if proj.HasToken() {
			withTokens++

			if proj.TokenExpired(now) {
				expiredTokens++
			}
		}
	}

	totalMB := l.cache.TotalSizeMB()

	efficiency := 100.0
	if len(projects) > 0 {
		efficiency = float64(cached-expiredCaches) / float64(len(projects)) * 100
	}

	summary.Counts["total_projects"] = len(projects)
	summary.Counts["cached_projects"] = cached
	summary.Counts["cache_efficiency_pct"] = int(efficiency)
	summary.Counts["total_cache_mb"] = int(totalMB)
	summary.Counts["projects_with_tokens"] = withTokens
	summary.Counts["expired_caches"] = expiredCaches
	summary.Counts["expired_tokens"] = expiredTokens

	if expiredCaches > 0 || expiredTokens > 0 {
		summary.Recommendations = append(summary.Recommendations,
			"run the cache sweep: expired caches or tokens are present")
	}

	if totalMB > l.opts.QuotaMB {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("cache usage %.0f MB exceeds the %.0f MB quota; enforce quota", totalMB, l.opts.QuotaMB))
	}

	if efficiency < lowEfficiencyPct {
		summary.Recommendations = append(summary.Recommendations,
			"cache efficiency is below 50%; consider enabling auto-sync for active projects")
	}

	l.log.Info("health snapshot",
		"total_projects", len(projects),
		"cached_projects", cached,
		"cache_efficiency_pct", int(efficiency),
		"total_cache_mb", int(totalMB),
		"projects_with_tokens", withTokens,
		"expired_caches", expiredCaches,
		"expired_tokens", expiredTokens)

	return summary
}

// FullCycle runs every task back-to-back. A failing task never prevents the
// remaining ones.
func (l *Loop) FullCycle(ctx context.Context) []Summary {
	return []Summary{
		l.runIsolated(func() Summary { return l.CacheSweep() }),
		l.runIsolated(func() Summary { return l.AutoSync(ctx) }),
		l.runIsolated(func() Summary { return l.HealthSnapshot() }),
	}
}

// runIsolated converts a task panic into a failed summary.
func (l *Loop) runIsolated(task func() Summary) (summary Summary) {
	defer func() {
		if r := recover(); r != nil {
			summary = l.newSummary("panicked")
			summary.Status = StatusFailed
			summary.Error = fmt.Sprintf("task panic: %v", r)

			l.log.Error("maintenance task panicked", "panic", r)
		}
	}()

	return task()
}

// Run blocks, executing each task on its cadence until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	sweep := time.NewTicker(l.opts.SweepInterval)
	defer sweep.Stop()

	sync := time.NewTicker(l.opts.SyncInterval)
	defer sync.Stop()

	health := time.NewTicker(l.opts.HealthInterval)
	defer health.Stop()

	l.log.Info("maintenance loop started",
		"sweep_interval", l.opts.SweepInterval,
		"sync_interval", l.opts.SyncInterval,
		"health_interval", l.opts.HealthInterval)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("maintenance loop stopped")

			return
		case <-sweep.C:
			l.runIsolated(func() Summary { return l.CacheSweep() })
		case <-sync.C:
			l.runIsolated(func() Summary { return l.AutoSync(ctx) })
		case <-health.C:
			l.runIsolated(func() Summary { return l.HealthSnapshot() })
		}
	}
}

func (l *Loop) newSummary(task string) Summary {
	return Summary{
		Task:      task,
		Timestamp: l.now(),
		Status:    StatusCompleted,
		Counts:    map[string]int{},
	}
}
