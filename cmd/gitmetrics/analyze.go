package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/output"
	"github.com/gitmetrics/gitmetrics/internal/pipeline"
	"github.com/gitmetrics/gitmetrics/internal/progress"
	"github.com/gitmetrics/gitmetrics/internal/remote"
	"github.com/gitmetrics/gitmetrics/internal/report"
	"github.com/gitmetrics/gitmetrics/internal/telemetry"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo>",
	Short: "Analyze a repository",
	Long: `Fetches a repository and runs the lint, complexity and error stages over it
concurrently. <repo> is a clone URL, owner/name (GitHub), or a local path, with
an optional @ref suffix.

Reports are written to the output directory:
  complexity_report.json   per-file complexity and fragments
  error_report.json        per-file issues plus the repository summary
  linters_report.json      per-file lint output and formatted code

Examples:
  gitmetrics analyze https://github.com/acme/widgets
  gitmetrics analyze acme/widgets@v1.2.0 --no-lint --out reports
  gitmetrics analyze ./service --explain --blame --format markdown`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	registerAnalyzeFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func registerAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("ref", "", "Branch, tag, or commit to check out")
	f.Bool("shallow", false, "Shallow clone (depth 1)")
	f.StringP("out", "o", "", "Directory for the JSON reports")
	f.StringP("format", "f", "", "Summary format: text, json, markdown")
	f.Int("top", output.DefaultTop, "Rows per summary table")
	f.Bool("explain", false, "Explain and simplify medium and high complexity functions")
	f.Bool("blame", false, "Attribute complex functions to their last author")
	f.Bool("no-lint", false, "Skip the lint stage")
	f.Bool("no-complexity", false, "Skip the complexity stage")
	f.Bool("no-errors", false, "Skip the error detection stage")
	f.Bool("metrics", false, "Write run metrics to metrics.prom")
}

// applyAnalyzeFlags overlays the flags the user set on cfg.
func applyAnalyzeFlags(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("shallow") {
		cfg.Analysis.Shallow, _ = flags.GetBool("shallow")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("format") {
		format, _ := flags.GetString("format")
		cfg.Output.Format = string(output.ParseFormat(format))
	}
	if flags.Changed("explain") {
		cfg.LLM.Explain, _ = flags.GetBool("explain")
	}
	if flags.Changed("blame") {
		cfg.Analysis.Blame, _ = flags.GetBool("blame")
	}
	if flags.Changed("metrics") {
		cfg.Output.Metrics, _ = flags.GetBool("metrics")
	}
	if skip, _ := flags.GetBool("no-lint"); skip {
		cfg.Analysis.Lint = false
	}
	if skip, _ := flags.GetBool("no-complexity"); skip {
		cfg.Analysis.Complexity = false
	}
	if skip, _ := flags.GetBool("no-errors"); skip {
		cfg.Analysis.Errors = false
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ref, _ := cmd.Flags().GetString("ref")
	top, _ := cmd.Flags().GetInt("top")

	spinner := progress.NewSpinner(os.Stderr, "Fetching "+args[0])
	bars := &stageBars{stages: enabledStages(cfg), fetch: spinner}

	orch, err := pipeline.New(cfg,
		pipeline.WithRef(ref),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(telemetry.New()),
		pipeline.WithFetchProgress(spinner),
		pipeline.WithProgress(bars.StageDone),
	)
	if err != nil {
		return err
	}

	state, runErr := orch.Run(cmd.Context(), args[0])
	bars.finish(runErr)

	var fetchErr *remote.FetchError
	if errors.As(runErr, &fetchErr) {
		return fetchErr
	}

	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), "", cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(output.NewSummary(state, top)); err != nil {
		return err
	}

	// Messages go to stderr so JSON summaries stay parseable.
	notes := output.NewWriterFormatter(output.FormatText, os.Stderr, cfg.Output.Color)
	if runErr != nil {
		notes.Warning("%v", runErr)
	}
	if state.Interrupted {
		notes.Warning("interrupted, reports hold partial results (%v)", state.Cursors)
	}
	if state.PersistErr != nil {
		notes.Warning("reports not fully written: %v", state.PersistErr)
	} else {
		dir := cfg.Output.Dir
		if dir == "" {
			dir = "."
		}
		notes.Success("Reports written to %s", dir)
		if cfg.Output.Metrics {
			notes.Success("Run metrics written to %s", filepath.Join(dir, report.MetricsFile))
		}
	}
	return nil
}

func enabledStages(cfg *config.Config) int {
	n := 0
	for _, on := range []bool{cfg.Analysis.Lint, cfg.Analysis.Complexity, cfg.Analysis.Errors} {
		if on {
			n++
		}
	}
	return n
}

// stageBars swaps the fetch spinner for a stage bar once the first file is
// reported, since the file count is only known after fetching.
type stageBars struct {
	stages int
	fetch  *progress.Tracker

	once    sync.Once
	tracker *progress.Tracker
}

func (b *stageBars) StageDone(stage string, done, total int) {
	b.once.Do(func() {
		b.fetch.FinishSuccess()
		b.tracker = progress.NewTracker(os.Stderr, "Analyzing", total*b.stages)
	})
	b.tracker.StageDone(stage, done, total)
}

func (b *stageBars) finish(err error) {
	var fetchErr *remote.FetchError
	switch {
	case errors.As(err, &fetchErr):
		b.fetch.FinishError(fetchErr.Err)
	case b.tracker == nil:
		b.fetch.FinishSuccess()
	default:
		b.tracker.FinishSuccess()
	}
}
