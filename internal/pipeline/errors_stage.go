package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gitmetrics/gitmetrics/internal/issues"
	"github.com/gitmetrics/gitmetrics/internal/llm"
	"github.com/gitmetrics/gitmetrics/internal/logger"
	"github.com/gitmetrics/gitmetrics/internal/telemetry"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"go.uber.org/zap"
)

// CollaboratorFailedPrefix starts the error recorded when the collaborator
// call for a file fails.
const CollaboratorFailedPrefix = "analysis failed: "

// ErrorStage sends each numbered file to the collaborator and parses the
// [ISSUE n] blocks it answers with.
type ErrorStage struct {
	Generator llm.Generator
	Prompts   config.PromptsConfig

	Logger   *zap.SugaredLogger
	Metrics  *telemetry.Metrics
	Progress ProgressFunc
}

// Run drives the stage loop until run is exhausted.
func (s *ErrorStage) Run(run *StageRun[models.FileReport]) {
	log := logger.OrNop(s.Logger).With(logger.FieldStage, StageErrors)
	for run.Next() {
		file := run.Current()
		var report models.FileReport
		if err := guard(func() { report = s.process(run.ctx, file, log) }); err != nil {
			report = models.FileReport{Error: CollaboratorFailedPrefix + err.Error()}
		}
		outcome := telemetry.OutcomeOK
		if report.Failed() {
			outcome = telemetry.OutcomeError
			log.Warnw("error detection failed", logger.FieldFile, file.RelativePath, logger.FieldError, report.Error)
		}
		run.Record(report)
		s.Metrics.FileProcessed(StageErrors, outcome)
		if s.Progress != nil {
			s.Progress(StageErrors, run.Cursor(), run.Total())
		}
	}
}

func (s *ErrorStage) process(ctx context.Context, file models.FileRecord, log *zap.SugaredLogger) models.FileReport {
	src, err := os.ReadFile(file.AbsolutePath)
	if err != nil {
		return models.FileReport{Error: fmt.Sprintf("Failed to read file %s: %v", file.RelativePath, err)}
	}
	if len(src) == 0 {
		return models.FileReport{Metrics: &models.FileMetrics{}, Issues: map[string]models.Issue{}}
	}

	raw, err := s.Generator.Generate(ctx, llm.Prompt{
		Purpose: llm.PurposeErrors,
		System:  s.Prompts.ErrorSystem,
		User:    strings.ReplaceAll(s.Prompts.ErrorUser, config.CodePlaceholder, NumberLines(string(src))),
	})
	if err != nil {
		return models.FileReport{Error: CollaboratorFailedPrefix + err.Error()}
	}

	parsed := issues.Parse(raw)
	for _, d := range parsed.Dropped {
		log.Debugw("dropped issue block", logger.FieldFile, file.RelativePath, "reason", d.String())
	}

	metrics := parsed.Metrics()
	s.Metrics.IssuesFound(string(models.CriticalityHigh), metrics.HighPriority)
	s.Metrics.IssuesFound(string(models.CriticalityMedium), metrics.MediumPriority)
	s.Metrics.IssuesFound(string(models.CriticalityLow), metrics.LowPriority)
	s.Metrics.IssuesFound(string(models.CriticalityUnknown), metrics.UnknownIssues)

	return models.FileReport{Metrics: &metrics, Issues: parsed.Issues}
}

// NumberLines renders src as "<n>: <line>" per line, counting from 1.
func NumberLines(src string) string {
	lines := splitLines(src)
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(line)
	}
	return b.String()
}
