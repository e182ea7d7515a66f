package remote

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with two commits and returns its path and
// the hash of the first commit.
func initRepo(t *testing.T) (string, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Unix(1700000000, 0)}
	commit := func(content, msg string) plumbing.Hash {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte(content), 0o644))
		_, err := wt.Add("main.py")
		require.NoError(t, err)
		h, err := wt.Commit(msg, &git.CommitOptions{Author: sig})
		require.NoError(t, err)
		return h
	}

	first := commit("def a():\n    return 1\n", "first")
	commit("def a():\n    return 2\n", "second")
	return dir, first
}

func TestParse_LocalPlainDirectory(t *testing.T) {
	dir := t.TempDir()

	src, err := Parse(dir)
	require.NoError(t, err)
	assert.Empty(t, src.URL)
	assert.Equal(t, dir, src.Dir)

	require.NoError(t, src.Fetch(context.Background(), io.Discard, false))
	assert.False(t, src.Cloned())
	require.NoError(t, src.Cleanup())
	_, err = os.Stat(dir)
	assert.NoError(t, err, "in-place directories are never removed")
}

func TestParse_LocalGitRepository(t *testing.T) {
	dir, _ := initRepo(t)

	src, err := Parse(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, src.URL)
	assert.Empty(t, src.Dir)
}

func TestParse_GitHubShorthand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantURL string
		wantRef string
	}{
		{"simple owner/repo", "facebook/react", "https://github.com/facebook/react", ""},
		{"with ref suffix", "facebook/react@v18.2.0", "https://github.com/facebook/react", "v18.2.0"},
		{"with branch ref", "owner/repo@feature-branch", "https://github.com/owner/repo", "feature-branch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, src.URL)
			assert.Equal(t, tt.wantRef, src.Ref)
		})
	}
}

func TestParse_FullURLs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantURL string
		wantRef string
	}{
		{"github.com without scheme", "github.com/golang/go", "https://github.com/golang/go", ""},
		{"https URL", "https://github.com/kubernetes/kubernetes", "https://github.com/kubernetes/kubernetes", ""},
		{"gitlab URL", "https://gitlab.com/group/project", "https://gitlab.com/group/project", ""},
		{"SSH URL", "git@github.com:owner/repo.git", "git@github.com:owner/repo.git", ""},
		{"SSH URL with ref", "git@github.com:owner/repo.git@main", "git@github.com:owner/repo.git", "main"},
		{"URL with ref", "github.com/golang/go@go1.21.0", "https://github.com/golang/go", "go1.21.0"},
		{"file URL", "file:///srv/git/app.git", "file:///srv/git/app.git", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, src.URL)
			assert.Equal(t, tt.wantRef, src.Ref)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "not a repo", "justaname"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestSource_Name(t *testing.T) {
	assert.Equal(t, "react", (&Source{URL: "https://github.com/facebook/react"}).Name())
	assert.Equal(t, "repo", (&Source{URL: "git@github.com:owner/repo.git"}).Name())
	assert.Equal(t, "proj", (&Source{Dir: "/home/me/proj/"}).Name())
}

func TestSource_FetchLocalClone(t *testing.T) {
	dir, _ := initRepo(t)

	src, err := Parse(dir)
	require.NoError(t, err)
	require.NoError(t, src.Fetch(context.Background(), io.Discard, false))
	defer src.Cleanup()

	assert.True(t, src.Cloned())
	assert.NotEqual(t, dir, src.Dir)
	assert.Contains(t, filepath.Base(src.Dir), "gitmetrics-")

	data, err := os.ReadFile(filepath.Join(src.Dir, "main.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "return 2")

	clone := src.Dir
	require.NoError(t, src.Cleanup())
	require.NoError(t, src.Cleanup())
	_, err = os.Stat(clone)
	assert.True(t, os.IsNotExist(err))
}

func TestSource_FetchBranchRef(t *testing.T) {
	dir, first := initRepo(t)
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("old"), first)))

	src := &Source{URL: dir, Ref: "old"}
	require.NoError(t, src.Fetch(context.Background(), io.Discard, false))
	defer src.Cleanup()

	data, err := os.ReadFile(filepath.Join(src.Dir, "main.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "return 1")
}

func TestSource_FetchRevision(t *testing.T) {
	dir, first := initRepo(t)

	src := &Source{URL: dir, Ref: first.String()}
	require.NoError(t, src.Fetch(context.Background(), io.Discard, false))
	defer src.Cleanup()

	data, err := os.ReadFile(filepath.Join(src.Dir, "main.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "return 1")
}

func TestSource_FetchFailure(t *testing.T) {
	src := &Source{Input: "file:///nonexistent/gitmetrics/repo.git", URL: "file:///nonexistent/gitmetrics/repo.git"}
	err := src.Fetch(context.Background(), io.Discard, true)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "Failed to clone repo:")
	assert.Empty(t, src.Dir)
	assert.False(t, src.Cloned())
}

func TestSource_Clone_Network(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("GITMETRICS_NETWORK_TESTS") == "" {
		t.Skip("set GITMETRICS_NETWORK_TESTS to clone from GitHub")
	}

	src := &Source{URL: "https://github.com/octocat/Hello-World"}
	require.NoError(t, src.Clone(context.Background(), io.Discard, true))
	defer src.Cleanup()

	_, err := os.Stat(filepath.Join(src.Dir, ".git"))
	assert.NoError(t, err)
}
