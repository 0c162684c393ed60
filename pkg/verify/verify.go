package verify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/featurectl/featurectl/pkg/analyze"
	"github.com/featurectl/featurectl/pkg/engine"
)

// Level selects how deep verification goes.
type Level string

const (
	// LevelNone skips verification entirely.
	LevelNone Level = "none"

	// LevelBasic checks that declared files exist and are non-empty.
	LevelBasic Level = "basic"

	// LevelDiff additionally requires declared files to appear in the
	// git diff against HEAD.
	LevelDiff Level = "diff"

	// LevelFull adds symbol-level analysis of file contents.
	LevelFull Level = "full"
)

// ParseLevel validates a level string, defaulting empty to basic.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "":
		return LevelBasic, nil
	case LevelNone, LevelBasic, LevelDiff, LevelFull:
		return Level(s), nil
	default:
		return "", fmt.Errorf("invalid verify level: %q (must be none, basic, diff, or full)", s)
	}
}

// Result is the outcome of verifying one resource.
type Result struct {
	Level       Level
	Passed      bool
	Score       float64
	Diagnostics []string

	// ChangedFiles lists the git-diff entries seen at the diff tier.
	ChangedFiles []string

	// Symbols holds the symbol statuses found during full verification,
	// keyed by qualified name.
	Symbols map[string]engine.SymbolStatus
}

// Summary renders a one-line verification summary.
func (r *Result) Summary() string {
	word := "failed"
	if r.Passed {
		word = "passed"
	}
	return fmt.Sprintf("verification %s at %s level (score %.2f)", word, r.Level, r.Score)
}

// Verifier checks resources against the working tree at ProjectRoot.
type Verifier struct {
	projectRoot string

	// gitDiff is the diff source, swappable in tests.
	gitDiff func(ctx context.Context) ([]string, error)
}

// New creates a verifier rooted at the given project directory.
func New(projectRoot string) *Verifier {
	v := &Verifier{projectRoot: projectRoot}
	v.gitDiff = v.runGitDiff
	return v
}

// Verify runs the requested tier against a resource. It never returns
// an error: failures turn into diagnostics and lowered scores.
func (v *Verifier) Verify(ctx context.Context, r *engine.Resource, level Level) *Result {
	switch level {
	case LevelNone:
		return &Result{Level: LevelNone, Passed: true, Score: 1}
	case LevelDiff:
		return v.verifyDiff(ctx, r)
	case LevelFull:
		return v.verifyFull(ctx, r)
	default:
		return v.verifyBasic(r)
	}
}

// verifyBasic checks that every declared file exists and is non-empty.
// A resource declaring no files passes vacuously with score zero.
func (v *Verifier) verifyBasic(r *engine.Resource) *Result {
	result := &Result{Level: LevelBasic}

	files := v.declaredFiles(r)
	if len(files) == 0 {
		result.Passed = true
		result.Diagnostics = append(result.Diagnostics, "no files declared")
		return result
	}

	found := 0
	for _, f := range files {
		info, err := os.Stat(filepath.Join(v.projectRoot, f))
		if err != nil || info.Size() == 0 {
			result.Diagnostics = append(result.Diagnostics, "file missing or empty: "+f)
			continue
		}
		found++
	}

	result.Score = float64(found) / float64(len(files))
	result.Passed = found == len(files)
	return result
}

// verifyDiff requires the declared files to appear in the diff against
// HEAD. When git is unavailable the diff sub-score drops to zero and a
// diagnostic records why.
func (v *Verifier) verifyDiff(ctx context.Context, r *engine.Resource) *Result {
	basic := v.verifyBasic(r)

	result := &Result{
		Level:       LevelDiff,
		Diagnostics: basic.Diagnostics,
	}

	files := v.declaredFiles(r)
	if len(files) == 0 {
		result.Passed = basic.Passed
		result.Score = basic.Score
		return result
	}

	changed, err := v.gitDiff(ctx)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, "git diff unavailable: "+err.Error())
		return result
	}

	result.ChangedFiles = changed

	if len(changed) == 0 {
		result.Diagnostics = append(result.Diagnostics, "no changes in working tree")
		return result
	}

	changedSet := make(map[string]bool, len(changed))
	for _, f := range changed {
		changedSet[filepath.ToSlash(f)] = true
	}

	matched := 0
	for _, f := range files {
		if changedSet[filepath.ToSlash(f)] {
			matched++
		} else {
			result.Diagnostics = append(result.Diagnostics, "file not in diff: "+f)
		}
	}

	diffScore := float64(matched) / float64(len(files))
	result.Score = min(basic.Score, diffScore)
	result.Passed = result.Score >= 1
	return result
}

// verifyFull layers symbol analysis on top of the basic and diff tiers.
// The composite score weights file presence and diff evidence at 0.3
// each and symbol evidence at 0.4; passing needs both lower tiers clean
// and at least some symbol evidence.
func (v *Verifier) verifyFull(ctx context.Context, r *engine.Resource) *Result {
	basic := v.verifyBasic(r)
	diff := v.verifyDiff(ctx, r)

	result := &Result{
		Level:        LevelFull,
		Diagnostics:  diff.Diagnostics,
		ChangedFiles: diff.ChangedFiles,
		Symbols:      make(map[string]engine.SymbolStatus),
	}

	symbolScore := v.symbolScore(ctx, r, result)

	result.Score = 0.3*basic.Score + 0.3*diff.Score + 0.4*symbolScore
	result.Passed = basic.Score >= 1 && diff.Score >= 1 && symbolScore > 0
	return result
}

// symbolScore analyzes each declared file that has an analyzer and
// averages the per-file scores against the resource's attributes.
// Files without an analyzer do not drag the average down.
func (v *Verifier) symbolScore(ctx context.Context, r *engine.Resource, result *Result) float64 {
	var total float64
	analyzed := 0

	for _, f := range v.declaredFiles(r) {
		analysis, err := analyze.AnalyzeFile(ctx, filepath.Join(v.projectRoot, f))
		if err != nil {
			result.Diagnostics = append(result.Diagnostics, "analysis failed for "+f+": "+err.Error())
			continue
		}
		if analysis == nil {
			continue
		}
		analyzed++
		total += analyze.ScoreAgainstSpec(analysis, r.Attributes)

		for _, sym := range analysis.Symbols {
			sym.File = f
			result.Symbols[sym.QualifiedName()] = sym
		}
	}

	if analyzed == 0 {
		result.Diagnostics = append(result.Diagnostics, "no analyzable files")
		return 0
	}
	return total / float64(analyzed)
}

// declaredFiles merges the resource's Files list with any "files"
// attribute, expands glob patterns against the project root, and
// deduplicates while preserving declaration order.
func (v *Verifier) declaredFiles(r *engine.Resource) []string {
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

	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	for _, pattern := range raw {
		if !strings.ContainsAny(pattern, "*?[{") {
			add(pattern)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(v.projectRoot), pattern)
		if err != nil || len(matches) == 0 {
			// Keep the raw pattern so Stat reports it as missing.
			add(pattern)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out
}

// runGitDiff returns the files changed relative to HEAD.
func (v *Verifier) runGitDiff(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "HEAD")
	cmd.Dir = v.projectRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
