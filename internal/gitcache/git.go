package gitcache

import (
	"context"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// originRemote is the remote name all cache trees track.
const originRemote = "origin"

// Client performs the git operations the cache needs. Implementations must
// be safe for concurrent use across distinct paths; the cache serializes
// calls per project.
type Client interface {
	// Clone clones url into path and returns the HEAD commit hash. When
	// branch is non-empty that branch is checked out.
	Clone(ctx context.Context, url, path, branch string) (string, error)

	// Sync points origin at url, fetches, hard-resets the working tree to
	// the remote tip, and returns the new HEAD commit hash.
	Sync(ctx context.Context, path, url, branch string) (string, error)

	// RemoteHead lists remote refs through the clone at path and returns
	// the tip hash of branch (or the remote HEAD when branch is empty).
	RemoteHead(ctx context.Context, path, branch string) (string, error)
}

// LibgitClient implements Client on libgit2. Operations run on a worker
// goroutine so the caller's context deadline bounds the wait; a timed-out
// operation keeps running in the background and its result is discarded.
type LibgitClient struct{}

// NewLibgitClient returns a libgit2-backed git client.
func NewLibgitClient() *LibgitClient {
	return &LibgitClient{}
}

// Clone implements Client.
func (c *LibgitClient) Clone(ctx context.Context, url, path, branch string) (string, error) {
	return runBounded(ctx, func() (string, error) {
		opts := git2go.CloneOptions{
			CheckoutOptions: git2go.CheckoutOptions{Strategy: git2go.CheckoutForce},
			CheckoutBranch:  branch,
		}

		repo, err := git2go.Clone(url, path, &opts)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrClone, url, err)
		}
		defer repo.Free()

		return headHash(repo)
	})
}

// Sync implements Client.
func (c *LibgitClient) Sync(ctx context.Context, path, url, branch string) (string, error) {
	return runBounded(ctx, func() (string, error) {
		repo, err := git2go.OpenRepository(path)
		if err != nil {
			return "", fmt.Errorf("%w: open: %w", ErrSync, err)
		}
		defer repo.Free()

		err = repo.Remotes.SetUrl(originRemote, url)
		if err != nil {
			return "", fmt.Errorf("%w: set remote url: %w", ErrSync, err)
		}

		remote, err := repo.Remotes.Lookup(originRemote)
		if err != nil {
			return "", fmt.Errorf("%w: lookup remote: %w", ErrSync, err)
		}
		defer remote.Free()

		err = remote.Fetch(nil, &git2go.FetchOptions{}, "")
		if err != nil {
			return "", fmt.Errorf("%w: fetch: %w", ErrSync, err)
		}

		commit, err := remoteTipCommit(repo, branch)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrSync, err)
		}
		defer commit.Free()

		err = repo.ResetToCommit(commit, git2go.ResetHard, &git2go.CheckoutOptions{Strategy: git2go.CheckoutForce})
		if err != nil {
			return "", fmt.Errorf("%w: reset: %w", ErrSync, err)
		}

		return commit.Id().String(), nil
	})
}

// RemoteHead implements Client.
func (c *LibgitClient) RemoteHead(ctx context.Context, path, branch string) (string, error) {
	return runBounded(ctx, func() (string, error) {
		repo, err := git2go.OpenRepository(path)
		if err != nil {
			return "", fmt.Errorf("%w: open: %w", ErrProbe, err)
		}
		defer repo.Free()

		remote, err := repo.Remotes.Lookup(originRemote)
		if err != nil {
			return "", fmt.Errorf("%w: lookup remote: %w", ErrProbe, err)
		}
		defer remote.Free()

		err = remote.ConnectFetch(nil, nil, nil)
		if err != nil {
			return "", fmt.Errorf("%w: connect: %w", ErrProbe, err)
		}
		defer remote.Disconnect()

		heads, err := remote.Ls()
		if err != nil {
			return "", fmt.Errorf("%w: ls-remote: %w", ErrProbe, err)
		}

		want := "HEAD"
		if branch != "" {
			want = "refs/heads/" + branch
		}

		for _, head := range heads {
			if head.Name == want {
				return head.Id.String(), nil
			}
		}

		return "", fmt.Errorf("%w: ref %s not found", ErrProbe, want)
	})
}

// remoteTipCommit resolves the fetched remote tip for branch, falling back to
// the remote HEAD tracking ref when branch is empty.
func remoteTipCommit(repo *git2go.Repository, branch string) (*git2go.Commit, error) {
	refName := "refs/remotes/" + originRemote + "/HEAD"
	if branch != "" {
		refName = "refs/remotes/" + originRemote + "/" + branch
	}

	ref, err := repo.References.Lookup(refName)
	if err != nil {
		// Repos without an origin/HEAD symref fall back to FETCH_HEAD.
		ref, err = repo.References.Lookup("FETCH_HEAD")
		if err != nil {
			return nil, fmt.Errorf("resolve remote tip: %w", err)
		}
	}
	defer ref.Free()

	resolved, err := ref.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve ref: %w", err)
	}
	defer resolved.Free()

	return repo.LookupCommit(resolved.Target())
}

func headHash(repo *git2go.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return ref.Target().String(), nil
}

// runBounded runs op on its own goroutine and waits for either completion or
// the context deadline. Deadline expiry abandons the operation.
func runBounded(ctx context.Context, op func() (string, error)) (string, error) {
	type result struct {
		hash string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		hash, err := op()
		done <- result{hash: hash, err: err}
	}()

	select {
	case res := <-done:
		return res.hash, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrDeadline, ctx.Err())
	}
}
