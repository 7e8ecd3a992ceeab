// Package project holds the persistent per-repository record shared by the
// repository cache, token vault, and maintenance loop.
package project

import "time"

// Project is the per-repo-URL record: display metadata, cache bookkeeping,
// and the encrypted access token. Cache and vault operations mutate it under
// the store's per-project lock; readers get value snapshots.
type Project struct {
	ID      string
	Name    string
	RepoURL string

	CachedPath     string
	LastCommitHash string
	CacheExpiresAt time.Time
	CacheSizeMB    float64
	LastSyncedAt   time.Time

	AutoSyncEnabled bool

	EncryptedToken  string
	TokenExpiresAt  time.Time
	TokenLastUsedAt time.Time
}

// HasCache reports whether the project has cache bookkeeping at all.
func (p *Project) HasCache() bool {
	return p.CachedPath != ""
}

// CacheExpired reports whether the cache TTL has lapsed at the given instant.
func (p *Project) CacheExpired(now time.Time) bool {
	return p.HasCache() && !p.CacheExpiresAt.IsZero() && now.After(p.CacheExpiresAt)
}

// HasToken reports whether an encrypted token is stored.
func (p *Project) HasToken() bool {
	return p.EncryptedToken != ""
}

// TokenExpired reports whether the stored token is past its expiry.
func (p *Project) TokenExpired(now time.Time) bool {
	return p.HasToken() && !p.TokenExpiresAt.IsZero() && now.After(p.TokenExpiresAt)
}

// ClearCache drops all cache bookkeeping fields.
func (p *Project) ClearCache() {
	p.CachedPath = ""
	p.LastCommitHash = ""
	p.CacheExpiresAt = time.Time{}
	p.CacheSizeMB = 0
	p.LastSyncedAt = time.Time{}
}

// ClearToken drops the stored token and its expiry bookkeeping.
func (p *Project) ClearToken() {
	p.EncryptedToken = ""
	p.TokenExpiresAt = time.Time{}
	p.TokenLastUsedAt = time.Time{}
}
