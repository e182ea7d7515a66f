package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gitmetrics/gitmetrics/internal/llm"
	"github.com/gitmetrics/gitmetrics/internal/logger"
	"github.com/gitmetrics/gitmetrics/internal/telemetry"
	"github.com/gitmetrics/gitmetrics/pkg/analyzer/complexity"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"go.uber.org/zap"
)

// Placeholders stored when an explain or simplify call fails.
const (
	ExplainFailedPrefix = "analysis failed: "
	SimplifyFailed      = "# simplification failed"
)

// FunctionAnalyzer lists the functions of a source file.
type FunctionAnalyzer interface {
	Functions(ctx context.Context, path string) ([]models.FunctionMetrics, error)
}

// Attributor names the last author of a line range.
type Attributor interface {
	LastAuthor(path string, start, end int) (string, error)
}

// ComplexityStage reports functions at or above the medium threshold,
// optionally explained and simplified by the collaborator.
type ComplexityStage struct {
	Analyzer   FunctionAnalyzer
	Thresholds complexity.Thresholds

	// Explain enables the explain and simplify calls; Generator must be set.
	Explain   bool
	Generator llm.Generator
	Prompts   config.PromptsConfig

	// Blame is optional.
	Blame Attributor

	Logger   *zap.SugaredLogger
	Metrics  *telemetry.Metrics
	Progress ProgressFunc
}

// Run drives the stage loop until run is exhausted.
func (s *ComplexityStage) Run(run *StageRun[models.ComplexityResult]) {
	log := logger.OrNop(s.Logger).With(logger.FieldStage, StageComplexity)
	for run.Next() {
		file := run.Current()
		var result models.ComplexityResult
		if err := guard(func() { result = s.process(run.ctx, file, log) }); err != nil {
			result = models.ComplexityResult{
				File:      file.RelativePath,
				Fragments: []models.Fragment{},
				Error:     fmt.Sprintf("Failed to analyze file %s: %v", file.RelativePath, err),
			}
		}
		outcome := telemetry.OutcomeOK
		if result.Error != "" {
			outcome = telemetry.OutcomeError
			log.Warnw("complexity failed", logger.FieldFile, file.RelativePath, logger.FieldError, result.Error)
		}
		run.Record(result)
		s.Metrics.FileProcessed(StageComplexity, outcome)
		if s.Progress != nil {
			s.Progress(StageComplexity, run.Cursor(), run.Total())
		}
	}
}

func (s *ComplexityStage) process(ctx context.Context, file models.FileRecord, log *zap.SugaredLogger) models.ComplexityResult {
	result := models.ComplexityResult{File: file.RelativePath, Fragments: []models.Fragment{}}

	fns, err := s.Analyzer.Functions(ctx, file.AbsolutePath)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to analyze file %s: %v", file.RelativePath, err)
		return result
	}

	summary := complexity.Summarize(fns)
	result.TotalComplexity = summary.Total
	result.AverageComplexity = summary.Average
	result.FunctionCount = summary.Count

	var lines []string
	if s.Explain {
		src, err := os.ReadFile(file.AbsolutePath)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to analyze file %s: %v", file.RelativePath, err)
			return result
		}
		lines = splitLines(string(src))
	}

	for _, fn := range fns {
		crit := s.Thresholds.Classify(fn.Cyclomatic)
		if crit == models.CriticalityLow {
			continue
		}
		frag := models.Fragment{
			FunctionName:         fn.Name,
			StartLine:            fn.StartLine,
			EndLine:              fn.EndLine(),
			CyclomaticComplexity: fn.Cyclomatic,
			Criticality:          crit,
		}
		if s.Explain {
			code := sliceLines(lines, frag.StartLine, frag.EndLine)
			explanation, simplified := s.describe(ctx, code, file, log)
			frag.Explanation = &explanation
			frag.SimplifiedCode = &simplified
		}
		if s.Blame != nil {
			author, err := s.Blame.LastAuthor(file.RelativePath, frag.StartLine, frag.EndLine)
			if err != nil {
				log.Debugw("blame unavailable", logger.FieldFile, file.RelativePath, logger.FieldError, err)
			} else {
				frag.LastAuthor = author
			}
		}
		result.Fragments = append(result.Fragments, frag)
	}
	return result
}

// describe asks for an explanation and a simplification. A failed call leaves
// a placeholder in its field.
func (s *ComplexityStage) describe(ctx context.Context, code string, file models.FileRecord, log *zap.SugaredLogger) (string, string) {
	explanation, err := s.Generator.Generate(ctx, llm.Prompt{
		Purpose: llm.PurposeExplain,
		User:    strings.ReplaceAll(s.Prompts.Explain, config.CodePlaceholder, code),
	})
	if err != nil {
		log.Warnw("explain failed", logger.FieldFile, file.RelativePath, logger.FieldError, err)
		explanation = ExplainFailedPrefix + err.Error()
	}

	simplified, err := s.Generator.Generate(ctx, llm.Prompt{
		Purpose: llm.PurposeSimplify,
		User:    strings.ReplaceAll(s.Prompts.Simplify, config.CodePlaceholder, code),
	})
	if err != nil {
		log.Warnw("simplify failed", logger.FieldFile, file.RelativePath, logger.FieldError, err)
		simplified = SimplifyFailed
	}
	return explanation, simplified
}

// splitLines splits on \n, drops a trailing \r from each line, and does not
// produce an empty last line for a trailing newline.
func splitLines(src string) []string {
	src = strings.TrimSuffix(src, "\n")
	if src == "" {
		return nil
	}
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// sliceLines returns lines [start, end], 1-based and inclusive, clamped to
// the file.
func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
