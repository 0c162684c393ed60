package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// javascriptAnalyzer extracts symbols from JavaScript source using
// tree-sitter. Arrow functions assigned to const bindings count as
// functions since that is the dominant declaration style.
type javascriptAnalyzer struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func newJavaScriptAnalyzer() *javascriptAnalyzer {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &javascriptAnalyzer{parser: p}
}

func (a *javascriptAnalyzer) Language() string { return "javascript" }

func (a *javascriptAnalyzer) Analyze(ctx context.Context, content []byte) (*Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing javascript source: %w", err)
	}
	defer tree.Close()

	analysis := &Analysis{Language: "javascript"}
	root := tree.RootNode()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		a.extractTopLevel(root.NamedChild(i), content, analysis, false)
	}
	return analysis, nil
}

func (a *javascriptAnalyzer) extractTopLevel(node *sitter.Node, content []byte, analysis *Analysis, exported bool) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		if name := fieldText(node, "name", content); name != "" {
			analysis.Functions = append(analysis.Functions, name)
			analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "function", ""))
			if exported {
				analysis.Exports = append(analysis.Exports, name)
			}
		}

	case "class_declaration":
		a.extractClass(node, content, analysis, exported)

	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			decl := node.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			name := fieldText(decl, "name", content)
			value := decl.ChildByFieldName("value")
			if name == "" || value == nil {
				continue
			}
			if value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function" {
				analysis.Functions = append(analysis.Functions, name)
				analysis.Symbols = append(analysis.Symbols, symbolAt(decl, name, "function", ""))
				if exported {
					analysis.Exports = append(analysis.Exports, name)
				}
			}
		}

	case "export_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			a.extractTopLevel(node.NamedChild(i), content, analysis, true)
		}

	case "import_statement":
		if source := node.ChildByFieldName("source"); source != nil {
			analysis.Imports = append(analysis.Imports, strings.Trim(nodeText(source, content), `'"`))
		}
	}
}

func (a *javascriptAnalyzer) extractClass(node *sitter.Node, content []byte, analysis *Analysis, exported bool) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	analysis.Classes = append(analysis.Classes, name)
	analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "class", ""))
	if exported {
		analysis.Exports = append(analysis.Exports, name)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "method_definition" {
			continue
		}
		methodName := fieldText(child, "name", content)
		if methodName == "" {
			continue
		}
		analysis.Functions = append(analysis.Functions, methodName)
		analysis.Symbols = append(analysis.Symbols, symbolAt(child, methodName, "method", name))
	}
}
