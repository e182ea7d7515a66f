package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/cache"
	"github.com/gitmetrics/gitmetrics/internal/lint"
	"github.com/gitmetrics/gitmetrics/internal/llm"
	"github.com/gitmetrics/gitmetrics/internal/logger"
	"github.com/gitmetrics/gitmetrics/internal/remote"
	"github.com/gitmetrics/gitmetrics/internal/report"
	"github.com/gitmetrics/gitmetrics/internal/scanner"
	"github.com/gitmetrics/gitmetrics/internal/telemetry"
	"github.com/gitmetrics/gitmetrics/internal/vcs"
	"github.com/gitmetrics/gitmetrics/pkg/analyzer/complexity"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// StageError reports a stage that panicked outside the work for a single
// file; a panic inside it is recorded as that file's error. The other stages
// still finish and whatever was recorded is persisted.
type StageError struct {
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage panicked: %v", e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator runs the whole analysis of one repository.
type Orchestrator struct {
	cfg *config.Config

	lint      lint.Adapter
	analyzer  FunctionAnalyzer
	generator llm.Generator

	ref           string
	logger        *zap.SugaredLogger
	metrics       *telemetry.Metrics
	progress      ProgressFunc
	fetchProgress io.Writer
}

// Option is a functional option for configuring Orchestrator.
type Option func(*Orchestrator)

// WithLintAdapter replaces the command-line lint adapter.
func WithLintAdapter(a lint.Adapter) Option {
	return func(o *Orchestrator) {
		o.lint = a
	}
}

// WithAnalyzer replaces the tree-sitter complexity analyzer.
func WithAnalyzer(a FunctionAnalyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

// WithGenerator replaces the collaborator client built from config.
func WithGenerator(g llm.Generator) Option {
	return func(o *Orchestrator) {
		o.generator = g
	}
}

// WithRef checks out ref instead of the locator's own @ref or the default branch.
func WithRef(ref string) Option {
	return func(o *Orchestrator) {
		o.ref = ref
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics collects run metrics into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithProgress reports per-file stage progress to fn. fn is called from the
// stage goroutines concurrently.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithFetchProgress streams git clone progress to w.
func WithFetchProgress(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.fetchProgress = w
	}
}

// New creates an orchestrator. Unless replaced by options it lints with the
// configured commands, measures complexity with tree-sitter and talks to the
// configured collaborator endpoint.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.OrNop(o.logger)

	if o.lint == nil {
		o.lint = lint.NewExecAdapter(cfg.Lint, o.logger)
	}
	if o.analyzer == nil {
		o.analyzer = complexity.New()
	}
	if o.generator == nil && (cfg.Analysis.Errors || (cfg.Analysis.Complexity && cfg.LLM.Explain)) {
		gen, err := NewGenerator(cfg, o.logger, o.metrics)
		if err != nil {
			return nil, err
		}
		o.generator = gen
	}
	return o, nil
}

// NewGenerator builds the collaborator client described by cfg, observed by
// m and cached when the cache is enabled.
func NewGenerator(cfg *config.Config, log *zap.SugaredLogger, m *telemetry.Metrics) (llm.Generator, error) {
	client := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey(),
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           time.Duration(cfg.LLM.Timeout) * time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Logger:            log,
	})

	var gen llm.Generator = client
	if m != nil {
		gen = llm.Observed(gen, m)
	}
	if cfg.Cache.Enabled {
		store, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
		if err != nil {
			return nil, errors.Wrap(err, "open response cache")
		}
		gen = llm.NewCachedGenerator(gen, client.Model(), store, log)
	}
	return gen, nil
}

// Run analyzes the repository at locator and writes the reports. The returned
// error is a *remote.FetchError when the repository could not be fetched, in
// which case the error report holds only the repository-level entry, or a
// *StageError when a stage panicked. Cancelling ctx stops the stages at their
// next file; partial results are still aggregated and persisted.
func (o *Orchestrator) Run(ctx context.Context, locator string) (*State, error) {
	start := time.Now()
	state := newState(uuid.NewString(), locator)
	log := o.logger.With(logger.FieldRun, state.RunID, logger.FieldRepo, locator)

	o.transition(state, PhaseFetching, log)
	src, err := o.fetch(ctx, locator, state)
	if err != nil {
		var fetchErr *remote.FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = &remote.FetchError{Locator: locator, Err: err}
		}
		state.RepoError = fetchErr.Error()
		o.transition(state, PhaseFailed, log)
		log.Errorw("fetch failed", logger.FieldError, fetchErr.Err)
		if state.PersistErr = o.persistFailure(state); state.PersistErr != nil {
			log.Errorw("failed to write error report", logger.FieldError, state.PersistErr)
		}
		return state, fetchErr
	}
	defer func() {
		if err := src.Cleanup(); err != nil {
			log.Warnw("failed to remove workspace", logger.FieldError, err)
		}
	}()
	log.Infow("repository fetched", logger.FieldCount, len(state.Files), "workspace", state.WorkspacePath)

	o.transition(state, PhaseStages, log)
	stageErr := o.runStages(ctx, state, log)
	if ctx.Err() != nil {
		state.Interrupted = true
		log.Warnw("run interrupted, persisting partial results", "cursors", state.Cursors)
	}

	o.transition(state, PhaseAggregating, log)
	state.Summary = Aggregate(state.ErrorResults)

	o.transition(state, PhasePersisting, log)
	o.metrics.RunFinished(time.Since(start))
	state.PersistErr = o.persist(state)
	if state.PersistErr != nil {
		log.Errorw("failed to write reports", logger.FieldError, state.PersistErr)
	}

	o.transition(state, PhaseDone, log)
	log.Infow("analysis complete",
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		"files_analyzed", state.Summary.TotalFilesAnalyzed,
		"issues", state.Summary.TotalIssues,
		"error_score", state.Summary.ErrorScore,
	)
	return state, stageErr
}

func (o *Orchestrator) transition(state *State, p Phase, log *zap.SugaredLogger) {
	state.enter(p)
	log.Debugw("state transition", logger.FieldState, string(p))
}

// fetch materializes the workspace and enumerates its files.
func (o *Orchestrator) fetch(ctx context.Context, locator string, state *State) (*remote.Source, error) {
	src, err := remote.Parse(locator)
	if err != nil {
		return nil, &remote.FetchError{Locator: locator, Err: err}
	}
	if o.ref != "" {
		src.Ref = o.ref
	}
	if src.URL != "" {
		state.RepoURL = src.URL
	}

	if err := src.Fetch(ctx, o.fetchProgress, o.cfg.Analysis.Shallow); err != nil {
		return nil, err
	}

	files, err := scanner.NewScanner(o.cfg).Scan(src.Dir)
	if err != nil {
		_ = src.Cleanup()
		return nil, &remote.FetchError{Locator: locator, Err: errors.Wrap(err, "enumerate files")}
	}

	state.WorkspacePath = src.Dir
	state.Files = files
	return src, nil
}

// runStages fans the enabled stages out and joins them.
func (o *Orchestrator) runStages(ctx context.Context, state *State, log *zap.SugaredLogger) error {
	cfg := o.cfg
	wg := conc.NewWaitGroup()
	cursors := make(map[string]func() int)

	if cfg.Analysis.Lint {
		run := NewStageRun(ctx, StageLint, state.Files, state.LintResults)
		stage := &LintStage{Adapter: o.lint, Logger: log, Metrics: o.metrics, Progress: o.progress}
		cursors[StageLint] = run.Cursor
		wg.Go(func() { stage.Run(run) })
	}

	if cfg.Analysis.Complexity {
		run := NewStageRun(ctx, StageComplexity, state.Files, state.ComplexityResults)
		stage := &ComplexityStage{
			Analyzer: o.analyzer,
			Thresholds: complexity.Thresholds{
				High:   cfg.Thresholds.ComplexityHigh,
				Medium: cfg.Thresholds.ComplexityMedium,
			},
			Explain:   cfg.LLM.Explain && o.generator != nil,
			Generator: o.generator,
			Prompts:   cfg.Prompts,
			Logger:    log,
			Metrics:   o.metrics,
			Progress:  o.progress,
		}
		if cfg.Analysis.Blame {
			if blamer, err := vcs.OpenBlamer(state.WorkspacePath); err != nil {
				log.Warnw("blame disabled, workspace is not a git repository", logger.FieldError, err)
			} else {
				stage.Blame = blamer
			}
		}
		cursors[StageComplexity] = run.Cursor
		wg.Go(func() { stage.Run(run) })
	}

	if cfg.Analysis.Errors {
		run := NewStageRun(ctx, StageErrors, state.Files, state.ErrorResults)
		stage := &ErrorStage{Generator: o.generator, Prompts: cfg.Prompts, Logger: log, Metrics: o.metrics, Progress: o.progress}
		cursors[StageErrors] = run.Cursor
		wg.Go(func() { stage.Run(run) })
	}

	recovered := wg.WaitAndRecover()
	for name, cursor := range cursors {
		state.Cursors[name] = cursor()
	}
	if recovered != nil {
		err := &StageError{Err: recovered.AsError()}
		log.Errorw("stage panicked", logger.FieldError, err)
		return err
	}
	return nil
}

// persist writes the report of every enabled stage and the metrics file.
func (o *Orchestrator) persist(state *State) error {
	w, err := report.NewWriter(o.cfg.Output.Dir)
	if err != nil {
		return err
	}

	var errs error
	if o.cfg.Analysis.Complexity {
		errs = errors.CombineErrors(errs, w.WriteComplexity(state.ComplexityResults))
	}
	if o.cfg.Analysis.Errors {
		errs = errors.CombineErrors(errs, w.WriteErrors(state.ErrorReport()))
	}
	if o.cfg.Analysis.Lint {
		errs = errors.CombineErrors(errs, w.WriteLint(state.LintList()))
	}
	if o.cfg.Output.Metrics && o.metrics != nil {
		errs = errors.CombineErrors(errs, w.WriteMetrics(o.metrics))
	}
	return errs
}

func (o *Orchestrator) persistFailure(state *State) error {
	w, err := report.NewWriter(o.cfg.Output.Dir)
	if err != nil {
		return err
	}
	return w.WriteRepoFailure(state.RepoError)
}

// FileOrder returns the relative paths of state's files, for callers that
// print mappings in walk order.
func FileOrder(state *State) []string {
	out := make([]string, len(state.Files))
	for i, f := range state.Files {
		out[i] = f.RelativePath
	}
	return out
}

var _ FunctionAnalyzer = (*complexity.Analyzer)(nil)
