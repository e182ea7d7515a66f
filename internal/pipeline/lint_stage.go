package pipeline

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/lint"
	"github.com/gitmetrics/gitmetrics/internal/logger"
	"github.com/gitmetrics/gitmetrics/internal/telemetry"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"go.uber.org/zap"
)

// ProgressFunc is told after every visited file.
type ProgressFunc func(stage string, done, total int)

// LintStage checks and formats each file through a lint.Adapter.
type LintStage struct {
	Adapter  lint.Adapter
	Logger   *zap.SugaredLogger
	Metrics  *telemetry.Metrics
	Progress ProgressFunc
}

// Run drives the stage loop until run is exhausted.
func (s *LintStage) Run(run *StageRun[models.LintResult]) {
	log := logger.OrNop(s.Logger).With(logger.FieldStage, StageLint)
	for run.Next() {
		file := run.Current()
		var result models.LintResult
		var outcome string
		if err := guard(func() { result, outcome = s.process(run.ctx, file) }); err != nil {
			result, outcome = failedLint(file, err), telemetry.OutcomeError
		}
		if result.Error != "" {
			log.Warnw("lint failed", logger.FieldFile, file.RelativePath, logger.FieldError, result.Error)
		}
		run.Record(result)
		s.Metrics.FileProcessed(StageLint, outcome)
		if s.Progress != nil {
			s.Progress(StageLint, run.Cursor(), run.Total())
		}
	}
}

func (s *LintStage) process(ctx context.Context, file models.FileRecord) (models.LintResult, string) {
	result := models.LintResult{File: file.RelativePath}

	report, err := s.Adapter.Check(ctx, file.AbsolutePath, file.Language)
	if errors.Is(err, lint.ErrUnsupported) {
		result.Logs = lint.UnsupportedMarker
		result.FixedCode = lint.UnsupportedMarker
		return result, telemetry.OutcomeUnsupported
	}
	if err != nil {
		return failedLint(file, err), telemetry.OutcomeError
	}

	src, err := os.ReadFile(file.AbsolutePath)
	if err != nil {
		return failedLint(file, err), telemetry.OutcomeError
	}
	fixed, err := s.Adapter.Format(ctx, file.AbsolutePath, src, file.Language)
	switch {
	case errors.Is(err, lint.ErrUnsupported):
		result.FixedCode = lint.UnsupportedMarker
	case err != nil:
		return failedLint(file, err), telemetry.OutcomeError
	default:
		result.FixedCode = string(fixed)
	}

	result.Logs = report.Text
	result.ErrorCount = report.ErrorCount
	return result, telemetry.OutcomeOK
}

func failedLint(file models.FileRecord, err error) models.LintResult {
	return models.LintResult{File: file.RelativePath, Error: err.Error()}
}
