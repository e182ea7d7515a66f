package models

import "encoding/json"

// Issue is one defect finding extracted from a collaborator response.
type Issue struct {
	RowRange     string      `json:"rows"`
	ErrorText    string      `json:"error"`
	Criticality  Criticality `json:"criticality"`
	SolutionText string      `json:"solution"`
}

// FileMetrics summarizes the issues found in one file.
//
// TotalIssues counts only priority-classified issues, so it always equals
// HighPriority+MediumPriority+LowPriority. Issues whose criticality could not
// be classified are kept in the issue map and counted in UnknownIssues.
type FileMetrics struct {
	TotalIssues     int     `json:"total_issues"`
	HighPriority    int     `json:"high_priority"`
	MediumPriority  int     `json:"medium_priority"`
	LowPriority     int     `json:"low_priority"`
	ErrorScore      float64 `json:"error_score"`
	UnknownIssues   int     `json:"unknown_issues,omitempty"`
	DroppedBlocks   int     `json:"dropped_blocks,omitempty"`
}

// FileReport is the error-detection outcome for one file. Exactly one of
// Metrics/Issues or Error is meaningful.
type FileReport struct {
	Metrics *FileMetrics     `json:"metrics,omitempty"`
	Issues  map[string]Issue `json:"issues,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Failed reports whether the file could not be analyzed.
func (r FileReport) Failed() bool {
	return r.Error != ""
}

// MarshalJSON writes {"error": ...} for failed files and {"metrics", "issues"}
// otherwise, with an empty issue map rendered as {}.
func (r FileReport) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	metrics := FileMetrics{}
	if r.Metrics != nil {
		metrics = *r.Metrics
	}
	issues := r.Issues
	if issues == nil {
		issues = map[string]Issue{}
	}
	return json.Marshal(struct {
		Metrics FileMetrics      `json:"metrics"`
		Issues  map[string]Issue `json:"issues"`
	}{metrics, issues})
}

// RepositoryReport rolls file metrics up to the repository.
type RepositoryReport struct {
	TotalFilesAnalyzed   int     `json:"total_files_analyzed"`
	TotalIssues          int     `json:"total_issues"`
	HighPriorityIssues   int     `json:"high_priority_issues"`
	MediumPriorityIssues int     `json:"medium_priority_issues"`
	LowPriorityIssues    int     `json:"low_priority_issues"`
	ErrorScore           float64 `json:"error_score"`
}

// ErrorReport is the persisted shape of the error-detection results.
type ErrorReport struct {
	RepositorySummary RepositoryReport      `json:"repository_summary"`
	FileReports       map[string]FileReport `json:"file_reports"`
}
