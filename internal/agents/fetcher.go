package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v29/github"
	"github.com/src-d/enry/v2"
	"golang.org/x/oauth2"

	"github.com/Sumatoshi-tech/reviewd/internal/gitcache"
	"github.com/Sumatoshi-tech/reviewd/internal/project"
)

// fetcherVersion is recorded in report metadata.
const fetcherVersion = "git-fetcher/1.0"

// maxFileBytes is the per-file size cap for project snapshots. Larger files
// are skipped the same way binaries are.
const maxFileBytes = 1 << 20

// projectIDHashLen is the hex length of URL-derived project IDs.
const projectIDHashLen = 12

// GitFetcher is the default CodeFetcher: project snapshots come from cache
// working trees; PR diffs come from the hosting platform's API when the URL
// is recognizable, else from a branch diff in the clone.
type GitFetcher struct {
	cache  *gitcache.Cache
	store  *project.Store
	tokens gitcache.TokenSource
	differ gitcache.BranchDiffer
	log    *slog.Logger

	// HTTPClient overrides the GitHub API transport in tests.
	HTTPClient *http.Client
}

// NewGitFetcher wires the default fetcher.
func NewGitFetcher(
	cache *gitcache.Cache,
	store *project.Store,
	tokens gitcache.TokenSource,
	differ gitcache.BranchDiffer,
	log *slog.Logger,
) *GitFetcher {
	return &GitFetcher{cache: cache, store: store, tokens: tokens, differ: differ, log: log}
}

// Version implements the versioned hook for report metadata.
func (f *GitFetcher) Version() string { return fetcherVersion }

// GetPRDiff implements CodeFetcher.
func (f *GitFetcher) GetPRDiff(ctx context.Context, repoURL string, prID int, targetBranch, sourceBranch string) (string, error) {
	proj := f.ensureProject(repoURL)

	if owner, repo, ok := gitcache.SplitGitHubRepo(repoURL); ok {
		diff, err := f.fetchGitHubDiff(ctx, proj.ID, owner, repo, prID)
		if err == nil {
			return diff, nil
		}

		f.log.Debug("API diff fetch failed, trying branch diff",
			"repo", repoURL, "pr_id", prID, "error", err)
	}

	if targetBranch == "" || sourceBranch == "" {
		return "", fmt.Errorf("%w: pr %d of %s", ErrNoPRSource, prID, repoURL)
	}

	path, err := f.cache.Acquire(ctx, proj.ID, sourceBranch)
	if err != nil {
		return "", fmt.Errorf("%w: acquire %s: %w", ErrFetch, repoURL, err)
	}

	diff, err := f.differ.DiffBranches(ctx, path, targetBranch, sourceBranch)
	if err != nil {
		return "", fmt.Errorf("%w: diff %s...%s: %w", ErrFetch, targetBranch, sourceBranch, err)
	}

	if diff == "" {
		return "", fmt.Errorf("%w: empty diff for pr %d", ErrFetch, prID)
	}

	return diff, nil
}

func (f *GitFetcher) fetchGitHubDiff(ctx context.Context, projectID, owner, repo string, prID int) (string, error) {
	token, _ := f.tokens.Get(projectID)
	client := github.NewClient(f.apiClient(ctx, token))

	diff, _, err := client.PullRequests.GetRaw(ctx, owner, repo, prID, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("%w: pull request %d: %w", ErrFetch, prID, err)
	}

	if diff == "" {
		return "", fmt.Errorf("%w: pull request %d returned an empty diff", ErrFetch, prID)
	}

	return diff, nil
}

func (f *GitFetcher) apiClient(ctx context.Context, token string) *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}

	if token == "" {
		return nil
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// GetProjectFiles implements CodeFetcher: acquires a working tree and reads
// every reviewable file, keyed by path relative to the tree root. Vendored
// paths, binaries, and oversized files are skipped.
func (f *GitFetcher) GetProjectFiles(ctx context.Context, repoURL, branch string) (map[string]string, error) {
	proj := f.ensureProject(repoURL)

	root, err := f.cache.Acquire(ctx, proj.ID, branch)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire %s: %w", ErrFetch, repoURL, err)
	}

	files, err := readTree(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read tree: %w", ErrFetch, err)
	}

	return files, nil
}

// ChangedFilesFromDiff implements CodeFetcher.
func (f *GitFetcher) ChangedFilesFromDiff(diff string) []string {
	return ChangedFilesInDiff(diff)
}

// ensureProject registers a project row for repoURL on first contact. The ID
// is URL-derived so repeated scans share one cache slot.
func (f *GitFetcher) ensureProject(repoURL string) project.Project {
	if existing, ok := f.store.FindByURL(repoURL); ok {
		return existing
	}

	sum := sha256.Sum256([]byte(repoURL))
	proj := project.Project{
		ID:      hex.EncodeToString(sum[:])[:projectIDHashLen],
		Name:    repoNameFromURL(repoURL),
		RepoURL: repoURL,
	}

	f.store.Put(&proj)

	return proj
}

func repoNameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")

	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "repo"
	}

	return trimmed[idx+1:]
}

func readTree(root string) (map[string]string, error) {
	files := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}

			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)
		if enry.IsVendor(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxFileBytes {
			return nil //nolint:nilerr // oversized or vanished files are skipped
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil //nolint:nilerr
		}

		if enry.IsBinary(data) {
			return nil
		}

		files[rel] = string(data)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
