// Package vcs attributes source lines to their authors.
package vcs

import (
	"errors"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrLineRange is returned when a range falls outside the blamed file.
var ErrLineRange = errors.New("line range outside file")

// Blamer answers blame queries against HEAD of one repository. Results are
// memoized per file; it is safe for concurrent use.
type Blamer struct {
	head *object.Commit

	mu    sync.Mutex
	files map[string]*git.BlameResult
}

// OpenBlamer opens the repository at root.
func OpenBlamer(root string) (*Blamer, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, err
	}
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, err
	}
	return &Blamer{head: head, files: make(map[string]*git.BlameResult)}, nil
}

func (b *Blamer) blame(path string) (*git.BlameResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if res, ok := b.files[path]; ok {
		return res, nil
	}
	res, err := git.Blame(b.head, path)
	if err != nil {
		return nil, err
	}
	b.files[path] = res
	return res, nil
}

// LastAuthor returns the name of whoever most recently changed a line in
// [start, end] (1-based, inclusive) of the slash-separated path.
func (b *Blamer) LastAuthor(path string, start, end int) (string, error) {
	res, err := b.blame(path)
	if err != nil {
		return "", err
	}
	if start < 1 || end < start || start > len(res.Lines) {
		return "", ErrLineRange
	}
	if end > len(res.Lines) {
		end = len(res.Lines)
	}

	latest := res.Lines[start-1]
	for _, line := range res.Lines[start:end] {
		if line.Date.After(latest.Date) {
			latest = line
		}
	}
	if latest.AuthorName != "" {
		return latest.AuthorName, nil
	}
	return latest.Author, nil
}
