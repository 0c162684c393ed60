package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// pythonAnalyzer extracts symbols from Python source using tree-sitter.
type pythonAnalyzer struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func newPythonAnalyzer() *pythonAnalyzer {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &pythonAnalyzer{parser: p}
}

func (a *pythonAnalyzer) Language() string { return "python" }

func (a *pythonAnalyzer) Analyze(ctx context.Context, content []byte) (*Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing python source: %w", err)
	}
	defer tree.Close()

	analysis := &Analysis{Language: "python"}
	root := tree.RootNode()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		a.extractTopLevel(root.NamedChild(i), content, analysis)
	}
	return analysis, nil
}

func (a *pythonAnalyzer) extractTopLevel(node *sitter.Node, content []byte, analysis *Analysis) {
	switch node.Type() {
	case "function_definition":
		if name := fieldText(node, "name", content); name != "" {
			analysis.Functions = append(analysis.Functions, name)
			analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "function", ""))
		}

	case "class_definition":
		a.extractClass(node, content, analysis)

	case "decorated_definition":
		// Unwrap decorators; the definition is the last named child.
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "function_definition" || child.Type() == "class_definition" {
				a.extractTopLevel(child, content, analysis)
			}
		}

	case "import_statement", "import_from_statement":
		analysis.Imports = append(analysis.Imports, pythonImports(node, content)...)
	}
}

func (a *pythonAnalyzer) extractClass(node *sitter.Node, content []byte, analysis *Analysis) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	analysis.Classes = append(analysis.Classes, name)
	analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "class", ""))

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "decorated_definition" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if inner := child.NamedChild(j); inner.Type() == "function_definition" {
					child = inner
					break
				}
			}
		}
		if child.Type() != "function_definition" {
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

func pythonImports(node *sitter.Node, content []byte) []string {
	var imports []string
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				imports = append(imports, nodeText(child, content))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					imports = append(imports, nodeText(name, content))
				}
			}
		}
	case "import_from_statement":
		if module := node.ChildByFieldName("module_name"); module != nil {
			imports = append(imports, strings.TrimPrefix(nodeText(module, content), "."))
		}
	}
	return imports
}
