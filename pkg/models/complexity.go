package models

// FunctionMetrics is what the static complexity analyzer reports for one function.
type FunctionMetrics struct {
	Name       string `json:"name"`
	StartLine  int    `json:"start_line"`
	Length     int    `json:"length"`
	Cyclomatic int    `json:"cyclomatic_complexity"`
}

// EndLine returns the last line (1-based, inclusive) covered by the function.
func (f FunctionMetrics) EndLine() int {
	if f.Length <= 0 {
		return f.StartLine
	}
	return f.StartLine + f.Length - 1
}

// Fragment is a function flagged as complex enough to report.
type Fragment struct {
	FunctionName         string      `json:"function_name"`
	StartLine            int         `json:"start_line"`
	EndLine              int         `json:"end_line"`
	CyclomaticComplexity int         `json:"original_complexity"`
	Criticality          Criticality `json:"criticality"`
	Explanation          *string     `json:"description,omitempty"`
	SimplifiedCode       *string     `json:"solve,omitempty"`
	LastAuthor           string      `json:"last_author,omitempty"`
}

// ComplexityResult is the complexity stage outcome for one file.
type ComplexityResult struct {
	File              string     `json:"file_path"`
	TotalComplexity   int        `json:"total_complexity"`
	AverageComplexity float64    `json:"average_complexity"`
	FunctionCount     int        `json:"function_count"`
	Fragments         []Fragment `json:"fragments"`
	Error             string     `json:"error,omitempty"`
}
