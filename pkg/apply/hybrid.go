package apply

import (
	"context"
	"fmt"
	"strings"

	"github.com/featurectl/featurectl/pkg/engine"
)

// runHybrid dispatches the agent on every resource like auto mode, but
// nothing lands in state until a human reviews the agent's output and
// verification score.
func (e *executor) runHybrid(ctx context.Context, ordered []engine.PlanAction) (*Result, error) {
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

		agentResult, verifyResult := e.dispatchAgent(ctx, action)

		fmt.Printf("\n%s %s\n", action.Action.Symbol(), addr)
		if agentResult.Success {
			fmt.Printf("  agent succeeded, verification %s (score %.2f)\n",
				passedWord(verifyResult.Passed), verifyResult.Score)
			if out := strings.TrimSpace(agentResult.Output); out != "" {
				fmt.Println(indent(out, "  | "))
			}
		} else {
			fmt.Printf("  agent failed: %s\n", agentResult.Error)
		}

		stop, err := e.hybridReview(ctx, action, result, dirty)
		if err != nil {
			return nil, err
		}
		if stop {
			return result, nil
		}
	}

	return result, nil
}

// hybridReview asks the reviewer what the agent's attempt amounts to.
// Returns stop=true when the reviewer quits the run.
func (e *executor) hybridReview(ctx context.Context, action engine.PlanAction, result *Result, dirty map[string]bool) (bool, error) {
	addr := action.Resource.Address()

	answer, err := e.runner.Input("[a]ccept / [e]dits needed / [r]eject / [s]kip / [m]anual / [q]uit: ")
	if err != nil {
		return false, err
	}

	switch answer {
	case "a":
		if err := e.persistStatus(ctx, action, engine.StatusImplemented, "", nil); err != nil {
			return false, err
		}
		result.Implemented = append(result.Implemented, addr)

	case "e":
		reason, err := e.runner.Input("what still needs editing: ")
		if err != nil {
			return false, err
		}
		if err := e.persistStatus(ctx, action, engine.StatusPartial, reason, nil); err != nil {
			return false, err
		}
		result.Implemented = append(result.Implemented, addr)

	case "r":
		result.Failed = append(result.Failed, addr)
		dirty[addr] = true

	case "m":
		return e.manualFallback(ctx, action, result, dirty)

	case "q":
		fmt.Println("Stopping apply.")
		return true, nil

	default:
		result.Skipped = append(result.Skipped, addr)
		dirty[addr] = true
	}

	return false, nil
}

// manualFallback drops into a single interactive-style prompt for one
// resource.
func (e *executor) manualFallback(ctx context.Context, action engine.PlanAction, result *Result, dirty map[string]bool) (bool, error) {
	addr := action.Resource.Address()

	answer, err := e.runner.Input("[i]mplemented / [p]artial / [s]kip / [m]arket / [q]uit: ")
	if err != nil {
		return false, err
	}

	switch answer {
	case "i":
		if err := e.markImplementedWithEvidence(ctx, action); err != nil {
			return false, err
		}
		result.Implemented = append(result.Implemented, addr)

	case "p":
		reason, err := e.runner.Input("reason for partial: ")
		if err != nil {
			return false, err
		}
		if err := e.persistStatus(ctx, action, engine.StatusPartial, reason, nil); err != nil {
			return false, err
		}
		result.Implemented = append(result.Implemented, addr)

	case "m":
		task, err := e.postToMarket(ctx, action)
		if err != nil {
			e.runner.Logger.WithResource(addr).WithError(err).Error("market task failed")
			result.Failed = append(result.Failed, addr)
			dirty[addr] = true
			return false, nil
		}
		fmt.Printf("  posted market task %s\n", task.ID)
		result.MarketPending = append(result.MarketPending, addr)

	case "q":
		fmt.Println("Stopping apply.")
		return true, nil

	default:
		result.Skipped = append(result.Skipped, addr)
		dirty[addr] = true
	}

	return false, nil
}

func passedWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
