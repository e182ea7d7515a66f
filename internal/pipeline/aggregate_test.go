package pipeline

import (
	"testing"

	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]models.FileReport
		want    models.RepositoryReport
	}{
		{
			name:    "no files",
			results: map[string]models.FileReport{},
			want:    models.RepositoryReport{},
		},
		{
			name: "mean is not issue weighted",
			results: map[string]models.FileReport{
				"a.py": {Metrics: &models.FileMetrics{TotalIssues: 2, HighPriority: 1, MediumPriority: 1, ErrorScore: 2.5}},
				"b.py": {Metrics: &models.FileMetrics{}, Issues: map[string]models.Issue{}},
			},
			want: models.RepositoryReport{
				TotalFilesAnalyzed:   2,
				TotalIssues:          2,
				HighPriorityIssues:   1,
				MediumPriorityIssues: 1,
				ErrorScore:           1.25,
			},
		},
		{
			name: "failed files count and add zero",
			results: map[string]models.FileReport{
				"a.py": {Metrics: &models.FileMetrics{TotalIssues: 1, LowPriority: 1, ErrorScore: 1}},
				"b.py": {Error: "analysis failed: timeout"},
				"c.py": {Metrics: &models.FileMetrics{TotalIssues: 1, HighPriority: 1, ErrorScore: 3}},
			},
			want: models.RepositoryReport{
				TotalFilesAnalyzed: 3,
				TotalIssues:        2,
				HighPriorityIssues: 1,
				LowPriorityIssues:  1,
				ErrorScore:         1.33,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.results)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.TotalIssues, got.HighPriorityIssues+got.MediumPriorityIssues+got.LowPriorityIssues)
		})
	}
}

func TestAggregate_Nil(t *testing.T) {
	assert.Equal(t, models.RepositoryReport{}, Aggregate(nil))
}
