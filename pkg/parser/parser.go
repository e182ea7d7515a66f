// Package parser wraps tree-sitter for the languages gitmetrics can measure.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gitmetrics/gitmetrics/pkg/models"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const (
	LangGo         models.Language = "go"
	LangPython     models.Language = "python"
	LangJava       models.Language = "java"
	LangC          models.Language = "c"
	LangCPP        models.Language = "cpp"
	LangJavaScript models.Language = "javascript"
	LangTypeScript models.Language = "typescript"
	LangRust       models.Language = "rust"
	LangUnknown    models.Language = "unknown"
)

// Parser wraps a tree-sitter parser. It is not safe for concurrent use.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the parsed AST and the source it came from.
type ParseResult struct {
	Tree     *sitter.Tree
	Language models.Language
	Source   []byte
}

// New creates a new parser instance.
func New() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// Parse parses source code with the given language.
func (p *Parser) Parse(ctx context.Context, source []byte, lang models.Language) (*ParseResult, error) {
	tsLang, err := treeSitterLanguage(lang)
	if err != nil {
		return nil, err
	}

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	return &ParseResult{Tree: tree, Language: lang, Source: source}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

func treeSitterLanguage(lang models.Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangC:
		return c.GetLanguage(), nil
	case LangCPP:
		return cpp.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Supported reports whether lang can be parsed.
func Supported(lang models.Language) bool {
	_, err := treeSitterLanguage(lang)
	return err == nil
}

// DetectLanguage determines the language from a file path.
// Headers (.h) are parsed as C++, which accepts plain C headers too.
func DetectLanguage(path string) models.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo
	case ".py", ".pyw", ".pyi":
		return LangPython
	case ".java":
		return LangJava
	case ".c":
		return LangC
	case ".h", ".cpp", ".cc", ".cxx", ".hpp", ".hxx":
		return LangCPP
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript
	case ".ts":
		return LangTypeScript
	case ".rs":
		return LangRust
	default:
		return LangUnknown
	}
}

// TypedNodeVisitor visits AST nodes with the node type resolved once.
// Returning false stops descent into the node's children.
type TypedNodeVisitor func(node *sitter.Node, nodeType string) bool

// WalkTyped traverses the AST depth-first.
func WalkTyped(node *sitter.Node, visitor TypedNodeVisitor) {
	if node == nil {
		return
	}
	if !visitor(node, node.Type()) {
		return
	}
	for i := range int(node.ChildCount()) {
		WalkTyped(node.Child(i), visitor)
	}
}

// NodeText extracts the source text for a node.
// Returns empty string if node is nil or byte offsets are out of bounds.
func NodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// FunctionNode represents a parsed function.
type FunctionNode struct {
	Name      string
	StartLine int
	EndLine   int
	Body      *sitter.Node
}

// Functions extracts all function definitions in source order.
func Functions(result *ParseResult) []FunctionNode {
	funcTypes := functionNodeTypes(result.Language)
	var functions []FunctionNode

	WalkTyped(result.Tree.RootNode(), func(node *sitter.Node, nodeType string) bool {
		if funcTypes[nodeType] {
			functions = append(functions, extractFunction(node, result))
		}
		return true
	})

	return functions
}

func functionNodeTypes(lang models.Language) map[string]bool {
	var types []string
	switch lang {
	case LangGo:
		types = []string{"function_declaration", "method_declaration"}
	case LangPython:
		types = []string{"function_definition"}
	case LangJava:
		types = []string{"method_declaration", "constructor_declaration"}
	case LangC, LangCPP:
		types = []string{"function_definition"}
	case LangJavaScript, LangTypeScript:
		types = []string{"function_declaration", "method_definition"}
	case LangRust:
		types = []string{"function_item"}
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func extractFunction(node *sitter.Node, result *ParseResult) FunctionNode {
	fn := FunctionNode{
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Body:      node.ChildByFieldName("body"),
	}

	switch result.Language {
	case LangC, LangCPP:
		// C/C++ names live at the bottom of the declarator chain.
		decl := node.ChildByFieldName("declarator")
		for decl != nil {
			inner := decl.ChildByFieldName("declarator")
			if inner == nil {
				break
			}
			decl = inner
		}
		fn.Name = NodeText(decl, result.Source)
	default:
		fn.Name = NodeText(node.ChildByFieldName("name"), result.Source)
	}

	if fn.Name == "" {
		fn.Name = fmt.Sprintf("<anonymous>@%d", fn.StartLine)
	}
	if fn.Body == nil {
		fn.Body = node.ChildByFieldName("block")
	}
	return fn
}
