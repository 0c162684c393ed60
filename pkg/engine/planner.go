package engine

import (
	"fmt"
	"sort"
	"strings"
)

// GeneratePlan compares spec to state and returns the actions needed to
// converge. It is a pure function: deterministic, side-effect free, and
// total for well-formed inputs. Neither argument is mutated.
func GeneratePlan(spec *Spec, state *State) *Plan {
	plan := &Plan{}

	for _, specRes := range spec.List("") {
		stateRes := state.Get(specRes.Address())

		switch {
		case stateRes == nil:
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionCreate,
				Resource: specRes,
				Reason:   "resource declared in spec but not in state",
			})

		case stateRes.Status == StatusMissing:
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionCreate,
				Resource: specRes,
				Reason:   "resource exists in state but is missing",
			})

		case stateRes.Status == StatusPartial:
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionUpdate,
				Resource: specRes,
				Reason:   attrString(stateRes, "partial_reason", "resource is partially implemented"),
			})

		case stateRes.Status == StatusBroken:
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionUpdate,
				Resource: specRes,
				Reason:   attrString(stateRes, "broken_reason", "resource is broken and needs fixing"),
			})

		default:
			// Implemented and deprecated both count as converged.
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionNoop,
				Resource: specRes,
				Reason:   "resource is fully implemented",
			})
		}
	}

	// Resources tracked in state but no longer declared get deleted.
	// The action carries the state's version of the resource.
	for _, stateRes := range state.List("") {
		if spec.Get(stateRes.Address()) == nil {
			plan.Actions = append(plan.Actions, PlanAction{
				Action:   ActionDelete,
				Resource: stateRes,
				Reason:   "resource in state but not declared in spec",
			})
		}
	}

	// Stable order: deletes, creates, updates, no-ops; ties broken
	// lexicographically on address so plans are reproducible.
	sort.SliceStable(plan.Actions, func(i, j int) bool {
		pi, pj := plan.Actions[i].Action.priority(), plan.Actions[j].Action.priority()
		if pi != pj {
			return pi < pj
		}
		return plan.Actions[i].Resource.Address() < plan.Actions[j].Resource.Address()
	})

	return plan
}

func attrString(r *Resource, key, fallback string) string {
	if v, ok := r.Attributes[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// BlockedResource records a create action whose declared dependency is
// not yet satisfied in state. Advisory only: it never alters the plan.
type BlockedResource struct {
	Resource  string `json:"resource"`
	BlockedBy string `json:"blocked_by"`
	Reason    string `json:"reason"`
}

// CheckDependencies inspects every create action in the plan and reports
// dependencies that are absent from state or not yet implemented.
func CheckDependencies(plan *Plan, state *State) []BlockedResource {
	var blocked []BlockedResource

	for _, action := range plan.Creates() {
		for _, depAddr := range action.Resource.DependsOn {
			dep := state.Get(depAddr)
			switch {
			case dep == nil:
				blocked = append(blocked, BlockedResource{
					Resource:  action.Resource.Address(),
					BlockedBy: depAddr,
					Reason:    "dependency not in state",
				})
			case dep.Status != StatusImplemented:
				blocked = append(blocked, BlockedResource{
					Resource:  action.Resource.Address(),
					BlockedBy: depAddr,
					Reason:    fmt.Sprintf("dependency is %s", dep.Status),
				})
			}
		}
	}

	return blocked
}

// ANSI escape helpers for plan rendering.
const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

func actionColor(a ActionType) string {
	switch a {
	case ActionCreate:
		return ansiGreen
	case ActionUpdate:
		return ansiYellow
	case ActionDelete:
		return ansiRed
	default:
		return ""
	}
}

// FormatPlan renders a plan for human-readable terminal output. When
// verbose is set, no-op actions and symbol-level summaries are included.
func FormatPlan(plan *Plan, verbose bool) string {
	var lines []string
	lines = append(lines, "", "featurectl will perform the following actions:", "")

	for _, action := range plan.Actions {
		if action.Action == ActionNoop && !verbose {
			continue
		}

		color := actionColor(action.Action)
		end := ""
		if color != "" {
			end = ansiReset
		}
		lines = append(lines, fmt.Sprintf("%s  %s %s%s", color, action.Action.Symbol(), action.Resource.Address(), end))

		if action.Reason != "" && action.Action != ActionNoop {
			lines = append(lines, fmt.Sprintf("      # %s", action.Reason))
		}

		if verbose && len(action.Resource.Symbols) > 0 {
			implemented := 0
			var missing []SymbolStatus
			for _, sym := range action.Resource.Symbols {
				if sym.Status == "implemented" {
					implemented++
				} else {
					missing = append(missing, sym)
				}
			}
			sort.Slice(missing, func(i, j int) bool {
				return missing[i].QualifiedName() < missing[j].QualifiedName()
			})
			lines = append(lines, fmt.Sprintf("      Symbols: %d/%d found", implemented, len(action.Resource.Symbols)))
			for i, sym := range missing {
				if i == 5 {
					lines = append(lines, fmt.Sprintf("        ... and %d more", len(missing)-5))
					break
				}
				lines = append(lines, fmt.Sprintf("        - %s (missing)", sym.QualifiedName()))
			}
		}
	}

	lines = append(lines, "")

	if !plan.HasChanges() {
		lines = append(lines, ansiGreen+"No changes. State matches spec."+ansiReset)
	} else {
		var parts []string
		if n := len(plan.Creates()); n > 0 {
			parts = append(parts, fmt.Sprintf("%s%d to create%s", ansiGreen, n, ansiReset))
		}
		if n := len(plan.Updates()); n > 0 {
			parts = append(parts, fmt.Sprintf("%s%d to update%s", ansiYellow, n, ansiReset))
		}
		if n := len(plan.Deletes()); n > 0 {
			parts = append(parts, fmt.Sprintf("%s%d to delete%s", ansiRed, n, ansiReset))
		}
		lines = append(lines, fmt.Sprintf("Plan: %s.", strings.Join(parts, ", ")))
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}
