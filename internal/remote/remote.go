// Package remote resolves repository locators and materializes them as a
// local workspace.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Source represents a repository to analyze.
type Source struct {
	Input string // locator as given
	URL   string // clone URL; empty when a plain directory is analyzed in place
	Ref   string // branch, tag, or revision (empty = default branch)
	Dir   string // workspace root once fetched

	cloned bool
}

// FetchError reports that the repository could not be materialized.
// It is fatal to a run.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Failed to clone repo: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var schemePrefixes = []string{"https://", "http://", "git://", "ssh://", "file://", "git@"}

// Parse resolves a locator: an existing directory, owner/repo[@ref] GitHub
// shorthand, host/owner/repo, or a full git URL with optional @ref suffix.
// A directory holding a git repository is snapshot-cloned like a remote; any
// other directory is analyzed in place.
func Parse(locator string) (*Source, error) {
	if locator == "" {
		return nil, errors.New("empty repository locator")
	}

	if info, err := os.Stat(locator); err == nil && info.IsDir() {
		abs, err := filepath.Abs(locator)
		if err != nil {
			return nil, err
		}
		if isGitRepository(abs) {
			return &Source{Input: locator, URL: abs}, nil
		}
		return &Source{Input: locator, Dir: abs}, nil
	}

	path, ref := splitRef(locator)

	for _, p := range schemePrefixes {
		if strings.HasPrefix(path, p) {
			return &Source{Input: locator, URL: path, Ref: ref}, nil
		}
	}

	if isGitHubShorthand(path) {
		return &Source{Input: locator, URL: "https://github.com/" + path, Ref: ref}, nil
	}

	if isHostPath(path) {
		return &Source{Input: locator, URL: "https://" + path, Ref: ref}, nil
	}

	return nil, errors.Newf("not a repository locator: %q", locator)
}

// splitRef separates a trailing @ref. An "@" before the last "/" or ":" is
// part of the URL (git@host:owner/repo).
func splitRef(locator string) (string, string) {
	at := strings.LastIndex(locator, "@")
	if at == -1 || at < strings.LastIndexAny(locator, "/:") {
		return locator, ""
	}
	return locator[:at], locator[at+1:]
}

// isGitHubShorthand returns true if path matches owner/repo pattern.
func isGitHubShorthand(path string) bool {
	slashIdx := strings.Index(path, "/")
	if slashIdx == -1 {
		return false
	}
	if strings.Count(path, "/") != 1 {
		return false
	}
	// No dots before the slash (would indicate a domain)
	if strings.Contains(path[:slashIdx], ".") {
		return false
	}
	return slashIdx > 0 && slashIdx < len(path)-1
}

var hostPathRe = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+/[^/\s]+/[^\s]+$`)

// isHostPath matches host.tld/owner/repo without a scheme.
func isHostPath(path string) bool {
	return hostPathRe.MatchString(path)
}

func isGitRepository(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// Name is a short repository name for display and temp directory naming.
func (s *Source) Name() string {
	name := s.URL
	if name == "" {
		name = s.Dir
	}
	name = strings.TrimSuffix(strings.TrimRight(name, "/"), ".git")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "repo"
	}
	return name
}

// Cloned reports whether Dir is a temporary clone owned by the source.
func (s *Source) Cloned() bool {
	return s.cloned
}

// Fetch materializes the repository. In-place directories need no work.
// Failures are returned as *FetchError and leave nothing behind.
func (s *Source) Fetch(ctx context.Context, progress io.Writer, shallow bool) error {
	if s.URL == "" {
		if s.Dir == "" {
			return &FetchError{Locator: s.Input, Err: errors.New("nothing to fetch")}
		}
		return nil
	}
	if err := s.Clone(ctx, progress, shallow); err != nil {
		return &FetchError{Locator: s.Input, Err: err}
	}
	return nil
}

// Clone clones URL into a new temp directory and checks out Ref. A ref is
// tried as a branch, then a tag, then as a revision of a full clone.
func (s *Source) Clone(ctx context.Context, progress io.Writer, shallow bool) error {
	depth := 0
	if shallow {
		depth = 1
	}

	if s.Ref == "" {
		dir, _, err := s.cloneInto(ctx, &git.CloneOptions{URL: s.URL, Depth: depth, Progress: progress})
		if err != nil {
			return err
		}
		s.setDir(dir)
		return nil
	}

	var lastErr error
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(s.Ref),
		plumbing.NewTagReferenceName(s.Ref),
	} {
		dir, _, err := s.cloneInto(ctx, &git.CloneOptions{
			URL:           s.URL,
			ReferenceName: name,
			SingleBranch:  true,
			Depth:         depth,
			Progress:      progress,
		})
		if err == nil {
			s.setDir(dir)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	// Revisions need history, so this clone is never shallow.
	dir, repo, err := s.cloneInto(ctx, &git.CloneOptions{URL: s.URL, Progress: progress})
	if err != nil {
		return errors.CombineErrors(lastErr, err)
	}
	if err := checkoutRevision(repo, s.Ref); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	s.setDir(dir)
	return nil
}

func (s *Source) setDir(dir string) {
	s.Dir = dir
	s.cloned = true
}

func (s *Source) cloneInto(ctx context.Context, opts *git.CloneOptions) (string, *git.Repository, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("gitmetrics-%s-*", s.Name()))
	if err != nil {
		return "", nil, errors.Wrap(err, "create temp directory")
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, errors.Wrapf(err, "clone %s", opts.URL)
	}
	return dir, repo, nil
}

func checkoutRevision(repo *git.Repository, rev string) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return errors.Wrapf(err, "resolve %s", rev)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return errors.Wrapf(err, "checkout %s", rev)
	}
	return nil
}

// Cleanup removes the temporary clone. Safe to call multiple times; in-place
// directories are never removed.
func (s *Source) Cleanup() error {
	if !s.cloned || s.Dir == "" {
		return nil
	}
	err := os.RemoveAll(s.Dir)
	s.cloned = false
	return err
}
