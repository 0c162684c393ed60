package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/featurectl/featurectl/pkg/engine"
)

// goAnalyzer extracts symbols from Go source using tree-sitter.
type goAnalyzer struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func newGoAnalyzer() *goAnalyzer {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &goAnalyzer{parser: p}
}

func (a *goAnalyzer) Language() string { return "go" }

func (a *goAnalyzer) Analyze(ctx context.Context, content []byte) (*Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing go source: %w", err)
	}
	defer tree.Close()

	analysis := &Analysis{Language: "go"}
	root := tree.RootNode()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			if name := fieldText(node, "name", content); name != "" {
				analysis.Functions = append(analysis.Functions, name)
				analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "function", ""))
			}

		case "method_declaration":
			name := fieldText(node, "name", content)
			if name == "" {
				continue
			}
			receiver := goReceiverType(node, content)
			analysis.Functions = append(analysis.Functions, name)
			analysis.Symbols = append(analysis.Symbols, symbolAt(node, name, "method", receiver))

		case "type_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				name := fieldText(spec, "name", content)
				if name == "" {
					continue
				}
				kind := "type"
				switch typeNode := spec.ChildByFieldName("type"); {
				case typeNode == nil:
				case typeNode.Type() == "struct_type":
					kind = "class"
				case typeNode.Type() == "interface_type":
					kind = "interface"
				}
				analysis.Classes = append(analysis.Classes, name)
				analysis.Symbols = append(analysis.Symbols, symbolAt(spec, name, kind, ""))
			}

		case "import_declaration":
			analysis.Imports = append(analysis.Imports, goImports(node, content)...)
		}
	}

	return analysis, nil
}

// goReceiverType pulls the bare receiver type name out of a method
// declaration, stripping any pointer star.
func goReceiverType(node *sitter.Node, content []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	param := recv.NamedChild(0)
	typeNode := param.ChildByFieldName("type")
	if typeNode == nil {
		return ""
	}
	text := nodeText(typeNode, content)
	text = strings.TrimPrefix(text, "*")
	if idx := strings.IndexAny(text, "["); idx > 0 {
		text = text[:idx]
	}
	return text
}

func goImports(node *sitter.Node, content []byte) []string {
	var imports []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			if path := fieldText(n, "path", content); path != "" {
				imports = append(imports, strings.Trim(path, `"`))
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return imports
}

func fieldText(node *sitter.Node, field string, content []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, content)
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

func symbolAt(node *sitter.Node, name, kind, parent string) engine.SymbolStatus {
	return engine.SymbolStatus{
		Name:      name,
		Kind:      kind,
		Status:    "found",
		LineStart: int(node.StartPoint().Row) + 1,
		LineEnd:   int(node.EndPoint().Row) + 1,
		Parent:    parent,
	}
}
