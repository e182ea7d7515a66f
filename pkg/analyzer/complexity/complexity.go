// Package complexity measures per-function cyclomatic complexity with tree-sitter.
package complexity

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/gitmetrics/gitmetrics/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// Analyzer reports function metrics for source files.
// It is safe for concurrent use; each call gets its own tree-sitter parser.
type Analyzer struct{}

// New creates a new complexity analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Functions analyzes the file at path and returns its functions in source order.
func (a *Analyzer) Functions(ctx context.Context, path string) ([]models.FunctionMetrics, error) {
	lang := parser.DetectLanguage(path)
	if !parser.Supported(lang) {
		return nil, fmt.Errorf("unsupported language for file: %s", path)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return a.FunctionsFromSource(ctx, source, lang)
}

// FunctionsFromSource analyzes in-memory source of the given language.
func (a *Analyzer) FunctionsFromSource(ctx context.Context, source []byte, lang models.Language) ([]models.FunctionMetrics, error) {
	psr := parser.New()
	defer psr.Close()

	result, err := psr.Parse(ctx, source, lang)
	if err != nil {
		return nil, err
	}

	nodes := parser.Functions(result)
	functions := make([]models.FunctionMetrics, 0, len(nodes))
	for _, fn := range nodes {
		cyclomatic := 1
		if fn.Body != nil {
			cyclomatic += int(CountDecisionPoints(fn.Body, result.Source, lang))
		}
		functions = append(functions, models.FunctionMetrics{
			Name:       fn.Name,
			StartLine:  fn.StartLine,
			Length:     fn.EndLine - fn.StartLine + 1,
			Cyclomatic: cyclomatic,
		})
	}

	return functions, nil
}

// Thresholds defines where complexity bands start.
type Thresholds struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
}

// DefaultThresholds returns the standard bands: >=8 high, >=4 medium.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 8, Medium: 4}
}

// Classify maps a cyclomatic complexity onto a criticality band.
func (t Thresholds) Classify(cyclomatic int) models.Criticality {
	switch {
	case cyclomatic >= t.High:
		return models.CriticalityHigh
	case cyclomatic >= t.Medium:
		return models.CriticalityMedium
	default:
		return models.CriticalityLow
	}
}

// Summary is the file-level rollup over all functions, low-criticality ones included.
type Summary struct {
	Total   int
	Average float64
	Count   int
}

// Summarize totals the complexity of fns. Average is rounded to two decimals
// and is 0 when there are no functions.
func Summarize(fns []models.FunctionMetrics) Summary {
	s := Summary{Count: len(fns)}
	for _, fn := range fns {
		s.Total += fn.Cyclomatic
	}
	if s.Count > 0 {
		s.Average = math.Round(float64(s.Total)/float64(s.Count)*100) / 100
	}
	return s
}

// CountDecisionPoints counts branching constructs under node.
func CountDecisionPoints(node *sitter.Node, source []byte, lang models.Language) uint32 {
	var count uint32
	decisionTypes := decisionNodeTypes(lang)

	parser.WalkTyped(node, func(n *sitter.Node, nodeType string) bool {
		if decisionTypes[nodeType] {
			count++
		}
		switch nodeType {
		case "binary_expression", "logical_expression":
			op := operator(n, source)
			if op == "&&" || op == "||" {
				count++
			}
		case "boolean_operator":
			// Python "and"/"or"
			count++
		}
		return true
	})

	return count
}

var commonDecisionTypes = []string{
	"if_statement",
	"if_expression",
	"while_statement",
	"while_expression",
	"for_statement",
	"for_expression",
	"case_statement",
	"catch_clause",
	"ternary_expression",
	"conditional_expression",
}

// decisionNodeTypes returns AST node types that represent decision points.
func decisionNodeTypes(lang models.Language) map[string]bool {
	types := append([]string(nil), commonDecisionTypes...)

	switch lang {
	case parser.LangGo:
		types = append(types, "expression_case", "type_case", "communication_case")
	case parser.LangPython:
		types = append(types, "elif_clause", "except_clause", "for_in_clause", "if_clause", "case_clause")
	case parser.LangJava:
		types = append(types, "switch_label", "do_statement", "enhanced_for_statement")
	case parser.LangC, parser.LangCPP:
		types = append(types, "do_statement", "for_range_loop")
	case parser.LangJavaScript, parser.LangTypeScript:
		types = append(types, "switch_case", "do_statement", "for_in_statement")
	case parser.LangRust:
		types = append(types, "match_arm", "loop_expression", "if_let_expression")
	}

	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// operator extracts the operator token of a binary expression node.
func operator(node *sitter.Node, source []byte) string {
	if op := node.ChildByFieldName("operator"); op != nil {
		return parser.NodeText(op, source)
	}
	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if t := child.Type(); t == "&&" || t == "||" {
			return t
		}
	}
	return ""
}
