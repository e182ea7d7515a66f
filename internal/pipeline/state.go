// Package pipeline fetches a repository, runs the lint, complexity and
// error-detection stages over its files concurrently, and persists the results.
package pipeline

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/report"
	"github.com/gitmetrics/gitmetrics/pkg/models"
)

// Phase is a state of the run state machine.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseFetching    Phase = "fetching"
	PhaseStages      Phase = "stages"
	PhaseAggregating Phase = "aggregating"
	PhasePersisting  Phase = "persisting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed" // only reachable from PhaseFetching
)

// Stage names.
const (
	StageLint       = "lint"
	StageComplexity = "complexity"
	StageErrors     = "errors"
)

// State is everything one run knows. Files is fixed once fetching completes;
// each accumulator is written only by its own stage.
type State struct {
	RunID         string
	RepoURL       string
	WorkspacePath string
	Files         []models.FileRecord

	LintResults       map[string]models.LintResult
	ComplexityResults map[string]models.ComplexityResult
	ErrorResults      map[string]models.FileReport

	// Cursors holds how many files each stage visited, filled in at the join.
	Cursors map[string]int

	Summary models.RepositoryReport

	// RepoError is set when fetching failed; no file entries exist then.
	RepoError string
	// Interrupted is set when the run context ended before every stage finished.
	Interrupted bool
	// PersistErr holds the combined report write failures, if any.
	PersistErr error

	Phase       Phase
	Transitions []Phase
}

func newState(runID, repoURL string) *State {
	return &State{
		RunID:             runID,
		RepoURL:           repoURL,
		LintResults:       make(map[string]models.LintResult),
		ComplexityResults: make(map[string]models.ComplexityResult),
		ErrorResults:      make(map[string]models.FileReport),
		Cursors:           make(map[string]int),
		Phase:             PhaseInit,
		Transitions:       []Phase{PhaseInit},
	}
}

func (s *State) enter(p Phase) {
	s.Phase = p
	s.Transitions = append(s.Transitions, p)
}

// ErrorReport returns the persisted shape of the error-detection results.
func (s *State) ErrorReport() models.ErrorReport {
	if s.RepoError != "" {
		return models.ErrorReport{FileReports: map[string]models.FileReport{
			report.RepoKey: {Error: s.RepoError},
		}}
	}
	return models.ErrorReport{RepositorySummary: s.Summary, FileReports: s.ErrorResults}
}

// LintList returns the lint results in file order.
func (s *State) LintList() []models.LintResult {
	out := make([]models.LintResult, 0, len(s.LintResults))
	for _, f := range s.Files {
		if r, ok := s.LintResults[f.RelativePath]; ok {
			out = append(out, r)
		}
	}
	return out
}

// StageRun walks one stage over the file list:
//
//	for run.Next() {
//		file := run.Current()
//		...
//		run.Record(result)
//	}
//
// The cursor advances exactly once per visited file whatever the outcome.
// Iteration stops at the end of the list or when ctx is done.
type StageRun[T any] struct {
	ctx     context.Context
	name    string
	files   []models.FileRecord
	results map[string]T

	mu     sync.Mutex
	cursor int
}

// NewStageRun creates a run over files that records into results.
func NewStageRun[T any](ctx context.Context, name string, files []models.FileRecord, results map[string]T) *StageRun[T] {
	return &StageRun[T]{ctx: ctx, name: name, files: files, results: results}
}

// Name returns the stage name.
func (r *StageRun[T]) Name() string { return r.name }

// Total returns the number of files in the run.
func (r *StageRun[T]) Total() int { return len(r.files) }

// Next advances to the next file.
func (r *StageRun[T]) Next() bool {
	if r.ctx.Err() != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.files) {
		return false
	}
	r.cursor++
	return true
}

// Current returns the file the cursor is on. It must follow a true Next.
func (r *StageRun[T]) Current() models.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[r.cursor-1]
}

// Record stores the result for the current file, replacing any earlier one.
func (r *StageRun[T]) Record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[r.files[r.cursor-1].RelativePath] = v
}

// Cursor returns how many files have been visited.
func (r *StageRun[T]) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Done reports whether every file was visited.
func (r *StageRun[T]) Done() bool {
	return r.Cursor() == len(r.files)
}

// guard runs the work for one file and returns a panic raised by it as an
// error, so one bad file cannot end its stage.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
