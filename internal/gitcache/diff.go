package gitcache

import (
	"context"
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// BranchDiffer produces a unified diff between two branches of a local clone.
type BranchDiffer interface {
	DiffBranches(ctx context.Context, path, targetBranch, sourceBranch string) (string, error)
}

// DiffBranches implements BranchDiffer: a unified diff of target...source
// using the fetched remote-tracking refs of the clone at path.
func (c *LibgitClient) DiffBranches(ctx context.Context, path, targetBranch, sourceBranch string) (string, error) {
	return runBounded(ctx, func() (string, error) {
		repo, err := git2go.OpenRepository(path)
		if err != nil {
			return "", fmt.Errorf("open repository: %w", err)
		}
		defer repo.Free()

		targetTree, err := branchTree(repo, targetBranch)
		if err != nil {
			return "", err
		}
		defer targetTree.Free()

		sourceTree, err := branchTree(repo, sourceBranch)
		if err != nil {
			return "", err
		}
		defer sourceTree.Free()

		diffOpts, err := git2go.DefaultDiffOptions()
		if err != nil {
			return "", fmt.Errorf("diff options: %w", err)
		}

		diff, err := repo.DiffTreeToTree(targetTree, sourceTree, &diffOpts)
		if err != nil {
			return "", fmt.Errorf("diff trees: %w", err)
		}
		defer func() { _ = diff.Free() }()

		return renderUnifiedDiff(diff)
	})
}

// branchTree resolves a branch name to its tree, trying the remote-tracking
// ref first and the local branch second.
func branchTree(repo *git2go.Repository, branch string) (*git2go.Tree, error) {
	refNames := []string{
		"refs/remotes/" + originRemote + "/" + branch,
		"refs/heads/" + branch,
	}

	var lastErr error

	for _, refName := range refNames {
		ref, err := repo.References.Lookup(refName)
		if err != nil {
			lastErr = err

			continue
		}

		commit, err := repo.LookupCommit(ref.Target())
		ref.Free()

		if err != nil {
			lastErr = err

			continue
		}

		tree, err := commit.Tree()
		commit.Free()

		if err != nil {
			lastErr = err

			continue
		}

		return tree, nil
	}

	return nil, fmt.Errorf("resolve branch %s: %w", branch, lastErr)
}

// renderUnifiedDiff serializes a libgit2 diff into git's textual format.
func renderUnifiedDiff(diff *git2go.Diff) (string, error) {
	count, err := diff.NumDeltas()
	if err != nil {
		return "", fmt.Errorf("count deltas: %w", err)
	}

	var b strings.Builder

	for i := range count {
		patch, patchErr := diff.Patch(i)
		if patchErr != nil {
			return "", fmt.Errorf("patch %d: %w", i, patchErr)
		}

		text, textErr := patch.String()

		_ = patch.Free()

		if textErr != nil {
			return "", fmt.Errorf("render patch %d: %w", i, textErr)
		}

		b.WriteString(text)
	}

	return b.String(), nil
}
