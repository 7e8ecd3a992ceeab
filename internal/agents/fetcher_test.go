package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/project"
)

func TestRepoNameFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://github.com/acme/api.git": "api",
		"https://github.com/acme/api":     "api",
		"https://github.com/acme/api/":    "api",
		"git@host:acme/tools.git":         "tools",
		"":                                "repo",
	}

	for url, want := range cases {
		assert.Equal(t, want, repoNameFromURL(url), url)
	}
}

func TestEnsureProjectIsStable(t *testing.T) {
	t.Parallel()

	store := project.NewStore()
	fetcher := &GitFetcher{store: store}

	first := fetcher.ensureProject("https://github.com/acme/api")
	second := fetcher.ensureProject("https://github.com/acme/api")
	other := fetcher.ensureProject("https://github.com/acme/web")

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, "api", first.Name)
	assert.Len(t, store.All(), 2)
}

func TestReadTreeSkipsGitVendorAndBinary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor", "dep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	write := func(rel, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}

	write(filepath.Join(".git", "HEAD"), "ref: refs/heads/main\n")
	write(filepath.Join("vendor", "dep", "lib.py"), "x = 1\n")
	write(filepath.Join("src", "main.py"), "print('hi')\n")
	write("blob.bin", "\x00\x01\x02")

	files, err := readTree(root)
	require.NoError(t, err)

	assert.Len(t, files, 1)
	assert.Equal(t, "print('hi')\n", files["src/main.py"])
}
