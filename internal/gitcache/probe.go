package gitcache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v29/github"
	"golang.org/x/oauth2"
)

// HeadProber resolves the remote tip hash of a branch without touching the
// working tree.
type HeadProber interface {
	// Probe returns the tip commit hash of branch (default branch when
	// empty) for the repository at repoURL. token may be empty.
	Probe(ctx context.Context, repoURL, branch, token string) (string, error)
}

// GitHubProber probes via the GitHub REST API: one call for a named branch,
// two (repository then branch) when the default branch must be discovered.
type GitHubProber struct {
	// BaseClient overrides the HTTP client, used by tests to point at a
	// stub server. Nil uses oauth2/http defaults.
	BaseClient *http.Client
}

// Probe implements HeadProber. Fails with ErrProbe for non-GitHub URLs.
func (g *GitHubProber) Probe(ctx context.Context, repoURL, branch, token string) (string, error) {
	owner, repo, ok := SplitGitHubRepo(repoURL)
	if !ok {
		return "", fmt.Errorf("%w: not a recognized host: %s", ErrProbe, repoURL)
	}

	client := github.NewClient(g.httpClient(ctx, token))

	if branch == "" {
		repoInfo, _, err := client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("%w: get repository: %w", ErrProbe, err)
		}

		branch = repoInfo.GetDefaultBranch()
	}

	branchInfo, _, err := client.Repositories.GetBranch(ctx, owner, repo, branch)
	if err != nil {
		return "", fmt.Errorf("%w: get branch %s: %w", ErrProbe, branch, err)
	}

	sha := branchInfo.GetCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("%w: branch %s has no commit", ErrProbe, branch)
	}

	return sha, nil
}

func (g *GitHubProber) httpClient(ctx context.Context, token string) *http.Client {
	if g.BaseClient != nil {
		return g.BaseClient
	}

	if token == "" {
		return nil
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}
