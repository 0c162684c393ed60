package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/featurectl/featurectl/pkg/engine"
)

// Analysis is the symbol-level summary of one source file.
type Analysis struct {
	Language  string
	Functions []string
	Classes   []string
	Imports   []string
	Exports   []string
	Symbols   []engine.SymbolStatus
}

// Names returns every extracted symbol name, functions and classes alike.
func (a *Analysis) Names() []string {
	out := make([]string, 0, len(a.Functions)+len(a.Classes))
	out = append(out, a.Functions...)
	out = append(out, a.Classes...)
	return out
}

// Analyzer extracts symbols from files of one language.
type Analyzer interface {
	// Language returns the language identifier ("go", "python", "javascript").
	Language() string

	// Analyze parses source content and extracts its symbols.
	Analyze(ctx context.Context, content []byte) (*Analysis, error)
}

// registry maps file extensions to lazily constructed analyzers.
// tree-sitter parsers are not cheap to build and not safe for concurrent
// use, so each analyzer guards its parser internally and is built once.
type registry struct {
	mu        sync.Mutex
	factories map[string]func() Analyzer
	analyzers map[string]Analyzer
}

var defaultRegistry = &registry{
	factories: map[string]func() Analyzer{
		".go":  func() Analyzer { return newGoAnalyzer() },
		".py":  func() Analyzer { return newPythonAnalyzer() },
		".js":  func() Analyzer { return newJavaScriptAnalyzer() },
		".jsx": func() Analyzer { return newJavaScriptAnalyzer() },
		".mjs": func() Analyzer { return newJavaScriptAnalyzer() },
	},
	analyzers: make(map[string]Analyzer),
}

func (r *registry) forExtension(ext string) Analyzer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.analyzers[ext]; ok {
		return a
	}
	factory, ok := r.factories[ext]
	if !ok {
		return nil
	}
	a := factory()
	r.analyzers[ext] = a
	return a
}

// SupportedExtensions returns the extensions with a registered analyzer.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(defaultRegistry.factories))
	for ext := range defaultRegistry.factories {
		exts = append(exts, ext)
	}
	return exts
}

// AnalyzeFile reads and analyzes a single file. Returns (nil, nil) when
// no analyzer handles the file's extension.
func AnalyzeFile(ctx context.Context, path string) (*Analysis, error) {
	analyzer := defaultRegistry.forExtension(strings.ToLower(filepath.Ext(path)))
	if analyzer == nil {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return analyzer.Analyze(ctx, content)
}

// attribute keys whose values are matched exactly against symbol names.
var exactKeys = []string{"functions", "class", "classes", "entities", "exports", "imports"}

// attribute keys whose values are matched as substrings.
var substringKeys = []string{"commands", "strategies"}

// ScoreAgainstSpec compares extracted symbols with the symbols a
// resource's attributes declare. The score is the fraction of declared
// names found. Returns 0 when the attributes declare nothing checkable.
func ScoreAgainstSpec(analysis *Analysis, attributes map[string]any) float64 {
	if analysis == nil || attributes == nil {
		return 0
	}

	found := make(map[string]bool)
	for _, name := range analysis.Names() {
		found[strings.ToLower(name)] = true
	}
	for _, name := range analysis.Exports {
		found[strings.ToLower(name)] = true
	}
	for _, name := range analysis.Imports {
		found[strings.ToLower(name)] = true
	}

	var declared, matched int

	for _, key := range exactKeys {
		for _, want := range declaredNames(attributes, key) {
			declared++
			if found[strings.ToLower(want)] {
				matched++
			}
		}
	}

	for _, key := range substringKeys {
		for _, want := range declaredNames(attributes, key) {
			declared++
			lower := strings.ToLower(want)
			for name := range found {
				if strings.Contains(name, lower) || strings.Contains(lower, name) {
					matched++
					break
				}
			}
		}
	}

	if declared == 0 {
		return 0
	}
	return float64(matched) / float64(declared)
}

// declaredNames pulls a string or list of strings out of an attribute bag.
func declaredNames(attributes map[string]any, key string) []string {
	raw, ok := attributes[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
