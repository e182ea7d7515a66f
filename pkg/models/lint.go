package models

// LintResult is the lint stage outcome for one file.
type LintResult struct {
	File       string `json:"file"`
	Logs       string `json:"logs"`
	FixedCode  string `json:"fixed_code"`
	ErrorCount int    `json:"error_count"`
	Error      string `json:"error,omitempty"`
}
