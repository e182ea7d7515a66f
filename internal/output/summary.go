package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/gitmetrics/gitmetrics/internal/pipeline"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTop is how many rows the hotspot tables show.
const DefaultTop = 10

var printer = message.NewPrinter(language.English)

// SummaryData is the JSON form of a run summary.
type SummaryData struct {
	RunID       string                  `json:"run_id"`
	Repository  string                  `json:"repository"`
	Files       int                     `json:"files"`
	Interrupted bool                    `json:"interrupted,omitempty"`
	RepoError   string                  `json:"repo_error,omitempty"`
	Errors      models.RepositoryReport `json:"errors"`
	Complexity  []Hotspot               `json:"complexity_hotspots"`
	Lint        []LintRow               `json:"lint"`
	Failures    map[string][]string     `json:"failures,omitempty"`
}

// Hotspot is one complex function.
type Hotspot struct {
	File        string `json:"file"`
	Function    string `json:"function"`
	Lines       string `json:"lines"`
	Complexity  int    `json:"complexity"`
	Criticality string `json:"criticality"`
	Author      string `json:"last_author,omitempty"`
}

// LintRow is one file's lint finding count.
type LintRow struct {
	File   string `json:"file"`
	Errors int    `json:"error_count"`
}

// Summary renders the outcome of a run.
type Summary struct {
	data SummaryData
	top  int
}

// NewSummary builds a summary of state listing at most top hotspots and
// lint rows (0 = DefaultTop).
func NewSummary(state *pipeline.State, top int) *Summary {
	if top <= 0 {
		top = DefaultTop
	}
	d := SummaryData{
		RunID:       state.RunID,
		Repository:  state.RepoURL,
		Files:       len(state.Files),
		Interrupted: state.Interrupted,
		RepoError:   state.RepoError,
		Errors:      state.Summary,
		Complexity:  []Hotspot{},
		Lint:        []LintRow{},
		Failures:    map[string][]string{},
	}

	for _, path := range pipeline.FileOrder(state) {
		if r, ok := state.ComplexityResults[path]; ok {
			if r.Error != "" {
				d.Failures[pipeline.StageComplexity] = append(d.Failures[pipeline.StageComplexity], path)
			}
			for _, f := range r.Fragments {
				d.Complexity = append(d.Complexity, Hotspot{
					File:        path,
					Function:    f.FunctionName,
					Lines:       fmt.Sprintf("%d-%d", f.StartLine, f.EndLine),
					Complexity:  f.CyclomaticComplexity,
					Criticality: string(f.Criticality),
					Author:      f.LastAuthor,
				})
			}
		}
		if r, ok := state.LintResults[path]; ok {
			if r.Error != "" {
				d.Failures[pipeline.StageLint] = append(d.Failures[pipeline.StageLint], path)
			} else if r.ErrorCount > 0 {
				d.Lint = append(d.Lint, LintRow{File: path, Errors: r.ErrorCount})
			}
		}
		if r, ok := state.ErrorResults[path]; ok && r.Failed() {
			d.Failures[pipeline.StageErrors] = append(d.Failures[pipeline.StageErrors], path)
		}
	}

	sort.SliceStable(d.Complexity, func(i, j int) bool {
		return d.Complexity[i].Complexity > d.Complexity[j].Complexity
	})
	sort.SliceStable(d.Lint, func(i, j int) bool {
		return d.Lint[i].Errors > d.Lint[j].Errors
	})
	if len(d.Complexity) > top {
		d.Complexity = d.Complexity[:top]
	}
	if len(d.Lint) > top {
		d.Lint = d.Lint[:top]
	}
	return &Summary{data: d, top: top}
}

// Data returns the summary contents.
func (s *Summary) Data() SummaryData { return s.data }

func (s *Summary) RenderData() any { return s.data }

func (s *Summary) RenderText(w io.Writer, colored bool) error {
	return s.report(colored).RenderText(w, colored)
}

func (s *Summary) RenderMarkdown(w io.Writer) error {
	return s.report(false).RenderMarkdown(w)
}

func (s *Summary) report(colored bool) *Report {
	d := s.data
	if d.RepoError != "" {
		return &Report{Title: "Analysis of " + d.Repository, Sections: []Renderable{
			&Table{Headers: []string{"Error"}, Rows: [][]string{{d.RepoError}}},
		}}
	}

	paint := func(crit, text string) string {
		if colored {
			return CriticalityColor(crit, text)
		}
		return text
	}

	overview := &Table{
		Title:   "Errors",
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Files analyzed", printer.Sprintf("%d", d.Errors.TotalFilesAnalyzed)},
			{"Issues", printer.Sprintf("%d", d.Errors.TotalIssues)},
			{"High", paint("high", printer.Sprintf("%d", d.Errors.HighPriorityIssues))},
			{"Medium", paint("medium", printer.Sprintf("%d", d.Errors.MediumPriorityIssues))},
			{"Low", paint("low", printer.Sprintf("%d", d.Errors.LowPriorityIssues))},
			{"Error score", strconv.FormatFloat(d.Errors.ErrorScore, 'f', 2, 64)},
		},
	}

	hotspots := &Table{
		Title:   fmt.Sprintf("Complexity hotspots (top %d)", s.top),
		Headers: []string{"File", "Function", "Lines", "Complexity", "Criticality", "Author"},
	}
	for _, h := range d.Complexity {
		hotspots.Rows = append(hotspots.Rows, []string{
			h.File, h.Function, h.Lines, strconv.Itoa(h.Complexity), paint(h.Criticality, h.Criticality), h.Author,
		})
	}

	lint := &Table{
		Title:   fmt.Sprintf("Lint findings (top %d)", s.top),
		Headers: []string{"File", "Findings"},
	}
	for _, l := range d.Lint {
		lint.Rows = append(lint.Rows, []string{l.File, printer.Sprintf("%d", l.Errors)})
	}

	sections := []Renderable{overview, hotspots, lint}

	if len(d.Failures) > 0 {
		failures := &Table{Title: "Files that could not be analyzed", Headers: []string{"Stage", "Files"}}
		for _, stage := range []string{pipeline.StageLint, pipeline.StageComplexity, pipeline.StageErrors} {
			if n := len(d.Failures[stage]); n > 0 {
				failures.Rows = append(failures.Rows, []string{stage, printer.Sprintf("%d", n)})
			}
		}
		sections = append(sections, failures)
	}

	title := printer.Sprintf("Analysis of %s (%d files)", d.Repository, d.Files)
	if d.Interrupted {
		title += " [interrupted]"
	}
	return &Report{Title: title, Sections: sections}
}
