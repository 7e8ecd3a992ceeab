package maintenance

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/gitcache"
	"github.com/Sumatoshi-tech/reviewd/internal/project"
	"github.com/Sumatoshi-tech/reviewd/internal/vault"
)

// stubClient materializes a tiny working tree for every clone or sync.
type stubClient struct {
	mu        sync.Mutex
	syncCalls []string
	failFor   map[string]bool
	hash      string
}

func (c *stubClient) Clone(_ context.Context, url, path, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failFor[url] {
		return "", errors.New("clone rejected")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(path, "main.py"), []byte("x = 1\n"), 0o644); err != nil {
		return "", err
	}

	return c.hash, nil
}

func (c *stubClient) Sync(_ context.Context, path, url, _ string) (string, error) {
	c.mu.Lock()
	c.syncCalls = append(c.syncCalls, url)
	failed := c.failFor[url]
	c.mu.Unlock()

	if failed {
		return "", errors.New("sync rejected")
	}

	_ = path

	return c.hash, nil
}

func (c *stubClient) RemoteHead(_ context.Context, _, _ string) (string, error) {
	return c.hash, nil
}

type noTokens struct{}

func (noTokens) Get(string) (string, bool) { return "", false }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(t *testing.T) {
	t.Helper()
	t.Setenv(vault.KeyEnvVar, base64.StdEncoding.EncodeToString(make([]byte, 32)))
}

type fixture struct {
	store *project.Store
	cache *gitcache.Cache
	vault *vault.Vault
	loop  *Loop
	now   time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	testKey(t)

	store := project.NewStore()

	cache := gitcache.New(store, noTokens{}, &stubClient{hash: "abc123"}, nil,
		gitcache.Options{Root: t.TempDir()}, testLogger())

	tokenVault, err := vault.New(store, testLogger())
	require.NoError(t, err)

	loop := New(store, cache, tokenVault, opts, testLogger())
	loop.sleep = func(time.Duration) {}

	// The cache and vault run on the real clock, so the fixture does too.
	return &fixture{store: store, cache: cache, vault: tokenVault, loop: loop, now: time.Now()}
}

func (f *fixture) addProject(t *testing.T, id string, mutate func(*project.Project)) {
	t.Helper()

	proj := project.Project{
		ID:      id,
		Name:    id,
		RepoURL: "https://github.com/acme/" + id,
	}

	if mutate != nil {
		mutate(&proj)
	}

	f.store.Put(&proj)
}

func TestCacheSweepCountsAllThreePasses(t *testing.T) {
	fx := newFixture(t, Options{})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.py"), []byte("x = 1\n"), 0o644))

	fx.addProject(t, "stale", func(p *project.Project) {
		p.CachedPath = dir
		p.LastCommitHash = "abc"
		p.CacheExpiresAt = fx.now.Add(-time.Hour)
	})

	fx.addProject(t, "tokenless", nil)

	require.NoError(t, fx.vault.Store("tokenless", "tok", 1))

	// Force the token past expiry.
	require.NoError(t, fx.store.Update("tokenless", func(p *project.Project) {
		p.TokenExpiresAt = fx.now.Add(-time.Minute)
	}))

	summary := fx.loop.CacheSweep()

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Counts["expired_caches_removed"])
	assert.Equal(t, 1, summary.Counts["expired_tokens_removed"])
	assert.Equal(t, 0, summary.Counts["quota_evictions"])
}

func TestAutoSyncBatchesAndSkipsFresh(t *testing.T) {
	fx := newFixture(t, Options{SyncBatch: 2})

	stale := fx.now.Add(-2 * time.Hour)
	fresh := fx.now.Add(-10 * time.Minute)

	fx.addProject(t, "aaa", func(p *project.Project) {
		p.AutoSyncEnabled = true
		p.LastSyncedAt = stale
	})
	fx.addProject(t, "bbb", func(p *project.Project) {
		p.AutoSyncEnabled = true
		p.LastSyncedAt = stale
	})
	fx.addProject(t, "ccc", func(p *project.Project) {
		p.AutoSyncEnabled = true
		p.LastSyncedAt = stale
	})
	fx.addProject(t, "ddd", func(p *project.Project) {
		p.AutoSyncEnabled = true
		p.LastSyncedAt = fresh
	})
	fx.addProject(t, "eee", func(p *project.Project) {
		p.AutoSyncEnabled = false
		p.LastSyncedAt = stale
	})

	summary := fx.loop.AutoSync(context.Background())

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.Counts["due"])
	assert.Equal(t, 2, summary.Counts["synced"])
	assert.Equal(t, 0, summary.Counts["failed"])
}

func TestAutoSyncCountsFailures(t *testing.T) {
	fx := newFixture(t, Options{})

	// Empty RepoURL makes Acquire fail deterministically.
	fx.addProject(t, "broken", func(p *project.Project) {
		p.RepoURL = ""
		p.AutoSyncEnabled = true
		p.LastSyncedAt = fx.now.Add(-2 * time.Hour)
	})

	summary := fx.loop.AutoSync(context.Background())

	assert.Equal(t, 1, summary.Counts["failed"])
	assert.Equal(t, 0, summary.Counts["synced"])
	assert.Equal(t, StatusCompleted, summary.Status)
}

func TestHealthSnapshotRecommendations(t *testing.T) {
	fx := newFixture(t, Options{})

	dir := t.TempDir()

	fx.addProject(t, "expired", func(p *project.Project) {
		p.CachedPath = dir
		p.LastCommitHash = "abc"
		p.CacheExpiresAt = fx.now.Add(-time.Hour)
	})

	fx.addProject(t, "bare", nil)

	summary := fx.loop.HealthSnapshot()

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Counts["total_projects"])
	assert.Equal(t, 1, summary.Counts["cached_projects"])
	assert.Equal(t, 1, summary.Counts["expired_caches"])
	assert.Equal(t, 0, summary.Counts["cache_efficiency_pct"])
	assert.NotEmpty(t, summary.Recommendations)
}

func TestHealthSnapshotEmptyStore(t *testing.T) {
	fx := newFixture(t, Options{})

	summary := fx.loop.HealthSnapshot()

	assert.Equal(t, 0, summary.Counts["total_projects"])
	assert.Equal(t, 100, summary.Counts["cache_efficiency_pct"])
	assert.Empty(t, summary.Recommendations)
}

func TestFullCycleIsolatesTasks(t *testing.T) {
	fx := newFixture(t, Options{})

	summaries := fx.loop.FullCycle(context.Background())

	require.Len(t, summaries, 3)

	assert.Equal(t, "cache_sweep", summaries[0].Task)
	assert.Equal(t, "auto_sync", summaries[1].Task)
	assert.Equal(t, "health_snapshot", summaries[2].Task)

	for _, summary := range summaries {
		assert.Equal(t, StatusCompleted, summary.Status)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fx := newFixture(t, Options{
		SweepInterval:  time.Hour,
		SyncInterval:   time.Hour,
		HealthInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		fx.loop.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance loop did not stop")
	}
}
