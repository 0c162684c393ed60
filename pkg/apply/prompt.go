package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/featurectl/featurectl/pkg/contexts"
	"github.com/featurectl/featurectl/pkg/engine"
)

// PromptBuilder renders a plan action into the task description an
// agent receives. The prompt carries the resource's declared shape, its
// dependencies' files, the on-disk status of each declared file, and
// any context earlier agent runs left behind.
type PromptBuilder struct {
	ProjectRoot string
	State       *engine.State
	Contexts    *contexts.Registry
}

// Build renders the full prompt for one action.
func (b *PromptBuilder) Build(action engine.PlanAction) string {
	var sb strings.Builder

	b.writeHeader(&sb)
	b.writeResource(&sb, action)
	b.writeDependencies(&sb, action.Resource)
	b.writeFiles(&sb, action.Resource)
	b.writeAgentContext(&sb, action.Resource)
	b.writeInstructions(&sb, action)

	return sb.String()
}

func (b *PromptBuilder) writeHeader(sb *strings.Builder) {
	sb.WriteString("You are implementing a feature in an existing codebase.\n")
	fmt.Fprintf(sb, "Project root: %s\n\n", b.ProjectRoot)
}

func (b *PromptBuilder) writeResource(sb *strings.Builder, action engine.PlanAction) {
	fmt.Fprintf(sb, "## Resource: %s\n", action.Resource.Address())
	fmt.Fprintf(sb, "Action: %s\n", action.Action)

	// Attributes, minus "files" which gets its own section.
	keys := make([]string, 0, len(action.Resource.Attributes))
	for k := range action.Resource.Attributes {
		if k != "files" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %v\n", k, action.Resource.Attributes[k])
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeDependencies(sb *strings.Builder, r *engine.Resource) {
	if len(r.DependsOn) == 0 {
		return
	}

	sb.WriteString("## Dependencies (already implemented, build on these)\n")
	for _, dep := range r.DependsOn {
		fmt.Fprintf(sb, "- %s", dep)
		if b.State != nil {
			if depRes := b.State.Get(dep); depRes != nil && len(depRes.Files) > 0 {
				files := depRes.Files
				if len(files) > 3 {
					files = files[:3]
				}
				fmt.Fprintf(sb, " (files: %s)", strings.Join(files, ", "))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeFiles(sb *strings.Builder, r *engine.Resource) {
	files := declaredFiles(r)
	if len(files) == 0 {
		return
	}

	sb.WriteString("## Files\n")
	for _, f := range files {
		info, err := os.Stat(filepath.Join(b.ProjectRoot, f))
		if err == nil {
			fmt.Fprintf(sb, "- %s (%d bytes) -- update\n", f, info.Size())
		} else {
			fmt.Fprintf(sb, "- %s -- create\n", f)
		}
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeAgentContext(sb *strings.Builder, r *engine.Resource) {
	if b.Contexts == nil {
		return
	}
	entries := b.Contexts.ForResource(r.Address())
	if len(entries) == 0 {
		return
	}
	if len(entries) > 5 {
		entries = entries[:5]
	}

	sb.WriteString("## Prior agent context\n")
	for _, e := range entries {
		fmt.Fprintf(sb, "- %s (%s, %s)", e.Agent, e.Status(), e.AgeString())
		if len(e.FilesTouched) > 0 {
			fmt.Fprintf(sb, " touched: %s", strings.Join(e.FilesTouched, ", "))
		}
		sb.WriteString("\n")
		knowledge := e.Knowledge
		if len(knowledge) > 3 {
			knowledge = knowledge[:3]
		}
		for _, k := range knowledge {
			fmt.Fprintf(sb, "  - %s\n", k)
		}
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeInstructions(sb *strings.Builder, action engine.PlanAction) {
	sb.WriteString("## Instructions\n")
	switch action.Action {
	case engine.ActionCreate:
		fmt.Fprintf(sb, "Implement %s from scratch.\n", action.Resource.Address())
	case engine.ActionUpdate:
		fmt.Fprintf(sb, "Fix or complete the existing implementation of %s.\n", action.Resource.Address())
	case engine.ActionDelete:
		fmt.Fprintf(sb, "Remove the implementation of %s and all references to it.\n", action.Resource.Address())
	}
	if action.Reason != "" {
		fmt.Fprintf(sb, "Reason: %s\n", action.Reason)
	}

	sb.WriteString("\nRequirements:\n")
	sb.WriteString("1. Only touch files related to this resource.\n")
	sb.WriteString("2. Follow the existing code style and conventions.\n")
	sb.WriteString("3. Write or update tests for the changed behavior.\n")
	sb.WriteString("4. Do not modify unrelated resources or their files.\n")
	sb.WriteString("5. Leave the working tree compiling and tests passing.\n")
}

// declaredFiles merges a resource's Files list with any "files"
// attribute, deduplicating while preserving order.
func declaredFiles(r *engine.Resource) []string {
	var raw []string
	raw = append(raw, r.Files...)

	if attr, ok := r.Attributes["files"]; ok {
		switch value := attr.(type) {
		case []string:
			raw = append(raw, value...)
		case []any:
			for _, item := range value {
				if s, ok := item.(string); ok {
					raw = append(raw, s)
				}
			}
		case string:
			raw = append(raw, value)
		}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
