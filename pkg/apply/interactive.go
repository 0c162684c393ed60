package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/featurectl/featurectl/pkg/engine"
)

// runInteractive walks the plan one resource at a time and asks the
// user what to do with each. The user may have implemented a resource
// by hand, want the agent to try it, or decide it is not worth doing
// right now.
func (e *executor) runInteractive(ctx context.Context, ordered []engine.PlanAction) (*Result, error) {
	result := &Result{}
	dirty := make(map[string]bool)

	for _, action := range ordered {
		addr := action.Resource.Address()

		if dep, ok := dependenciesClean(action, dirty); !ok {
			fmt.Printf("Skipping %s: dependency %s did not converge\n", addr, dep)
			result.Skipped = append(result.Skipped, addr)
			dirty[addr] = true
			continue
		}

		if action.Action == engine.ActionDelete {
			if err := e.applyDelete(ctx, action); err != nil {
				return nil, err
			}
			result.Implemented = append(result.Implemented, addr)
			continue
		}

		e.renderAction(action)

		answer, err := e.runner.Input("[i]mplemented / [p]artial / [s]kip / [a]gent / [m]arket / [q]uit: ")
		if err != nil {
			return nil, err
		}

		switch answer {
		case "i":
			if err := e.markImplementedWithEvidence(ctx, action); err != nil {
				return nil, err
			}
			result.Implemented = append(result.Implemented, addr)

		case "p":
			reason, err := e.runner.Input("reason for partial: ")
			if err != nil {
				return nil, err
			}
			if err := e.persistStatus(ctx, action, engine.StatusPartial, reason, nil); err != nil {
				return nil, err
			}
			result.Implemented = append(result.Implemented, addr)

		case "a":
			switch out, _ := e.runAgent(ctx, action); out {
			case outcomeFailed:
				result.Failed = append(result.Failed, addr)
				dirty[addr] = true
			default:
				result.Implemented = append(result.Implemented, addr)
			}

		case "m":
			task, err := e.postToMarket(ctx, action)
			if err != nil {
				e.runner.Logger.WithResource(addr).WithError(err).Error("market task failed")
				result.Failed = append(result.Failed, addr)
				dirty[addr] = true
				continue
			}
			fmt.Printf("  posted market task %s\n", task.ID)
			result.MarketPending = append(result.MarketPending, addr)

		case "q":
			fmt.Println("Stopping apply.")
			return result, nil

		default:
			// Anything unrecognized, including "s", skips.
			result.Skipped = append(result.Skipped, addr)
			dirty[addr] = true
		}
	}

	return result, nil
}

// renderAction shows the user everything known about one action:
// dependency status, attributes, suggested files, and prior agent
// knowledge.
func (e *executor) renderAction(action engine.PlanAction) {
	r := action.Resource

	fmt.Printf("\n%s %s\n", action.Action.Symbol(), r.Address())
	if action.Reason != "" {
		fmt.Printf("  # %s\n", action.Reason)
	}

	for _, dep := range r.DependsOn {
		status := "untracked"
		if tracked := e.state.Get(dep); tracked != nil {
			status = string(tracked.Status)
		}
		fmt.Printf("  depends on %s (%s)\n", dep, status)
	}

	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		if k == "files" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, r.Attributes[k])
	}

	for _, f := range declaredFiles(r) {
		marker := "missing"
		if info, err := os.Stat(filepath.Join(e.runner.ProjectRoot, f)); err == nil && info.Size() > 0 {
			marker = "exists"
		}
		fmt.Printf("  file %s (%s)\n", f, marker)
	}

	if e.runner.Contexts != nil {
		for _, entry := range e.runner.Contexts.ForResource(r.Address()) {
			fmt.Printf("  %s worked on this %s (%s)\n", entry.Agent, entry.AgeString(), entry.ContributedStatus)
		}
	}
}
