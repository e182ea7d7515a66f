package pipeline

import (
	"github.com/gitmetrics/gitmetrics/internal/issues"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// Aggregate rolls the error-stage entries up to the repository. Every entry
// counts as analyzed; failed files add nothing to the sums and 0 to the mean
// error score.
func Aggregate(results map[string]models.FileReport) models.RepositoryReport {
	repo := models.RepositoryReport{TotalFilesAnalyzed: len(results)}
	if len(results) == 0 {
		return repo
	}

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Failed() || r.Metrics == nil {
			scores = append(scores, 0)
			continue
		}
		m := r.Metrics
		repo.TotalIssues += m.TotalIssues
		repo.HighPriorityIssues += m.HighPriority
		repo.MediumPriorityIssues += m.MediumPriority
		repo.LowPriorityIssues += m.LowPriority
		scores = append(scores, m.ErrorScore)
	}
	repo.ErrorScore = issues.Round2(stat.Mean(scores, nil))
	return repo
}
