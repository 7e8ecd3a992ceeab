package gitcache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrEmptyRepoURL indicates a project without a repository URL.
	ErrEmptyRepoURL = errors.New("project has no repository URL")
	// ErrClone indicates a fresh clone failed.
	ErrClone = errors.New("clone failed")
	// ErrSync indicates a pull/reset of an existing cache failed.
	ErrSync = errors.New("sync failed")
	// ErrProbe indicates the remote HEAD probe failed.
	ErrProbe = errors.New("remote probe failed")
	// ErrDeadline indicates a git operation exceeded its deadline.
	ErrDeadline = errors.New("deadline exceeded")
	// ErrAuth indicates the remote rejected the authenticated request.
	ErrAuth = errors.New("authentication rejected")
)
