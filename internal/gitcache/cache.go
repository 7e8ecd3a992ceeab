// Package gitcache hands out local working trees for remote repositories:
// content-addressed clone directories with commit-hash freshness checks, TTL
// expiry, and LRU quota enforcement.
package gitcache

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/reviewd/internal/project"
)

// DefaultQuotaMB is the default total cache quota (10 GiB).
const DefaultQuotaMB = 10 * 1024

// DefaultTTL is the default cache freshness window.
const DefaultTTL = 24 * time.Hour

// DefaultVCSTimeout bounds clone/fetch operations.
const DefaultVCSTimeout = 30 * time.Second

// DefaultProbeTimeout bounds remote HEAD probes.
const DefaultProbeTimeout = 10 * time.Second

// quotaTargetRatio is the fill ratio eviction drives usage down to.
const quotaTargetRatio = 0.8

// bytesPerMB converts byte counts to the MB figures stored on projects.
const bytesPerMB = 1024 * 1024

// TokenSource supplies decrypted access tokens for authenticated remotes.
type TokenSource interface {
	Get(projectID string) (token string, ok bool)
}

// Options configures a Cache.
type Options struct {
	Root         string
	QuotaMB      float64
	TTL          time.Duration
	VCSTimeout   time.Duration
	ProbeTimeout time.Duration
}

// withDefaults fills zero fields with package defaults.
func (o Options) withDefaults() Options {
	if o.QuotaMB <= 0 {
		o.QuotaMB = DefaultQuotaMB
	}

	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}

	if o.VCSTimeout <= 0 {
		o.VCSTimeout = DefaultVCSTimeout
	}

	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}

	return o
}

// Cache manages the clone directories for all projects. Concurrent Acquire
// calls on the same project serialize on the store's per-project lock;
// different projects proceed in parallel.
type Cache struct {
	store  *project.Store
	tokens TokenSource
	client Client
	prober HeadProber
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Cache. prober may be nil, in which case HEAD probes always
// go through the git client's ls-remote path.
func New(store *project.Store, tokens TokenSource, client Client, prober HeadProber, opts Options, log *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		tokens: tokens,
		client: client,
		prober: prober,
		opts:   opts.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// IsCacheValid reports whether the project's cache bookkeeping points at an
// existing, unexpired working tree.
func (c *Cache) IsCacheValid(p project.Project) bool {
	if !p.HasCache() || p.CacheExpired(c.now()) {
		return false
	}

	return pathExists(p.CachedPath)
}

// Acquire returns a local path holding a current working tree for the
// project. Freshness: on a cache hit the remote tip is probed and the tree is
// synced when it moved; probe failures bias toward a sync attempt. A missing
// or expired cache is cloned fresh.
func (c *Cache) Acquire(ctx context.Context, projectID, branch string) (string, error) {
	unlock := c.store.Lock(projectID)
	defer unlock()

	snap, err := c.store.Snapshot(projectID)
	if err != nil {
		return "", err
	}

	if snap.RepoURL == "" {
		return "", ErrEmptyRepoURL
	}

	token, _ := c.tokens.Get(projectID)

	if c.IsCacheValid(snap) {
		remoteHash, probeErr := c.probeHead(ctx, snap, branch, token)
		if probeErr == nil && remoteHash == snap.LastCommitHash {
			return snap.CachedPath, nil
		}

		if probeErr != nil {
			c.log.Debug("remote probe failed, attempting sync",
				"project_id", projectID, "error", probeErr)
		}

		path, syncErr := c.sync(ctx, snap, branch, token)
		if syncErr == nil {
			return path, nil
		}

		// Sync wiped the tree; fall through to a fresh clone.
		c.log.Warn("sync failed, falling back to fresh clone",
			"project_id", projectID, "error", syncErr)

		snap, err = c.store.Snapshot(projectID)
		if err != nil {
			return "", err
		}
	}

	return c.cloneFresh(ctx, snap, branch, token)
}

// probeHead resolves the remote tip, preferring the hosting platform's API
// when the URL is recognizable and falling back to ls-remote via the clone.
func (c *Cache) probeHead(ctx context.Context, snap project.Project, branch, token string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	if c.prober != nil {
		if _, _, ok := SplitGitHubRepo(snap.RepoURL); ok {
			return c.prober.Probe(probeCtx, snap.RepoURL, branch, token)
		}
	}

	return c.client.RemoteHead(probeCtx, snap.CachedPath, branch)
}

// sync pulls the existing tree up to the remote tip and refreshes the cache
// bookkeeping. On failure the local path is deleted and cache fields cleared
// before the error propagates.
func (c *Cache) sync(ctx context.Context, snap project.Project, branch, token string) (string, error) {
	vcsCtx, cancel := context.WithTimeout(ctx, c.opts.VCSTimeout)
	defer cancel()

	authURL := AuthenticatedURL(snap.RepoURL, token)

	hash, err := c.client.Sync(vcsCtx, snap.CachedPath, authURL, branch)
	if err != nil {
		c.dropTree(snap.ID, snap.CachedPath)

		return "", fmt.Errorf("sync %s: %w", snap.RepoURL, err)
	}

	now := c.now()
	sizeMB := dirSizeMB(snap.CachedPath)

	updateErr := c.store.Update(snap.ID, func(p *project.Project) {
		p.LastCommitHash = hash
		p.LastSyncedAt = now
		p.CacheExpiresAt = now.Add(c.opts.TTL)
		p.CacheSizeMB = sizeMB
	})
	if updateErr != nil {
		return "", updateErr
	}

	return snap.CachedPath, nil
}

// cloneFresh wipes any stale tree and clones the repository from scratch,
// retrying unauthenticated when an authenticated clone is rejected (the
// remote may be public and the token stale).
func (c *Cache) cloneFresh(ctx context.Context, snap project.Project, branch, token string) (string, error) {
	path := CachePath(c.opts.Root, snap.ID, snap.Name, snap.RepoURL)

	removeErr := os.RemoveAll(path)
	if removeErr != nil {
		return "", fmt.Errorf("%w: remove stale tree: %w", ErrClone, removeErr)
	}

	mkdirErr := os.MkdirAll(c.opts.Root, 0o755)
	if mkdirErr != nil {
		return "", fmt.Errorf("%w: create cache root: %w", ErrClone, mkdirErr)
	}

	vcsCtx, cancel := context.WithTimeout(ctx, c.opts.VCSTimeout)
	defer cancel()

	hash, err := c.client.Clone(vcsCtx, AuthenticatedURL(snap.RepoURL, token), path, branch)
	if err != nil && token != "" {
		c.log.Warn("authenticated clone failed, retrying unauthenticated",
			"project_id", snap.ID, "error", err)

		_ = os.RemoveAll(path)
		hash, err = c.client.Clone(vcsCtx, snap.RepoURL, path, branch)
	}

	if err != nil {
		_ = os.RemoveAll(path)

		return "", fmt.Errorf("clone %s: %w", snap.RepoURL, err)
	}

	now := c.now()
	sizeMB := dirSizeMB(path)

	updateErr := c.store.Update(snap.ID, func(p *project.Project) {
		p.CachedPath = path
		p.LastCommitHash = hash
		p.LastSyncedAt = now
		p.CacheExpiresAt = now.Add(c.opts.TTL)
		p.CacheSizeMB = sizeMB
	})
	if updateErr != nil {
		return "", updateErr
	}

	c.log.Info("cloned repository",
		"project_id", snap.ID,
		"path", path,
		"size", humanize.IBytes(uint64(sizeMB*bytesPerMB)))

	return path, nil
}

// SweepExpired removes trees whose TTL has lapsed and returns the count.
// Idempotent back-to-back.
func (c *Cache) SweepExpired() int {
	now := c.now()
	swept := 0

	for _, snap := range c.store.All() {
		if !snap.CacheExpired(now) {
			continue
		}

		unlock := c.store.Lock(snap.ID)
		c.dropTree(snap.ID, snap.CachedPath)
		unlock()

		swept++
	}

	if swept > 0 {
		c.log.Info("swept expired caches", "count", swept)
	}

	return swept
}

// EnforceQuota evicts least-recently-synced trees until total usage is at or
// below 80% of the quota. Returns the number of evictions. Ties on
// last-synced time break by project ID ascending for determinism.
func (c *Cache) EnforceQuota() int {
	projects := c.store.All()

	var total float64

	cached := make([]project.Project, 0, len(projects))

	for _, p := range projects {
		if p.HasCache() {
			cached = append(cached, p)
			total += p.CacheSizeMB
		}
	}

	if total <= c.opts.QuotaMB {
		return 0
	}

	sort.Slice(cached, func(i, j int) bool {
		if cached[i].LastSyncedAt.Equal(cached[j].LastSyncedAt) {
			return cached[i].ID < cached[j].ID
		}

		return cached[i].LastSyncedAt.Before(cached[j].LastSyncedAt)
	})

	target := c.opts.QuotaMB * quotaTargetRatio
	evicted := 0

	for _, p := range cached {
		if total <= target {
			break
		}

		unlock := c.store.Lock(p.ID)
		c.dropTree(p.ID, p.CachedPath)
		unlock()

		total -= p.CacheSizeMB
		evicted++
	}

	if evicted > 0 {
		c.log.Info("enforced cache quota",
			"evicted", evicted,
			"usage", humanize.IBytes(uint64(total*bytesPerMB)),
			"quota", humanize.IBytes(uint64(c.opts.QuotaMB*bytesPerMB)))
	}

	return evicted
}

// TotalSizeMB sums cache sizes over all projects.
func (c *Cache) TotalSizeMB() float64 {
	var total float64

	for _, p := range c.store.All() {
		total += p.CacheSizeMB
	}

	return total
}

// dropTree deletes the working tree and clears cache bookkeeping. Row first,
// then directory; a failed directory removal is logged, not propagated.
func (c *Cache) dropTree(projectID, path string) {
	_ = c.store.Update(projectID, func(p *project.Project) {
		p.ClearCache()
	})

	if path == "" {
		return
	}

	err := os.RemoveAll(path)
	if err != nil {
		c.log.Warn("failed to remove cache tree", "project_id", projectID, "path", path, "error", err)
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// dirSizeMB walks the tree and returns its size in MB. Unreadable entries
// are skipped.
func dirSizeMB(root string) float64 {
	var bytes int64

	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // best-effort size accounting
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil //nolint:nilerr
		}

		bytes += info.Size()

		return nil
	})

	return float64(bytes) / bytesPerMB
}
