package apply

import (
	"context"

	"github.com/featurectl/featurectl/pkg/engine"
)

// runAuto executes every action with the configured agent, no questions
// asked. With MaxWorkers > 1 independent actions run concurrently.
func (e *executor) runAuto(ctx context.Context, ordered []engine.PlanAction) (*Result, error) {
	if e.runner.Config.MaxWorkers > 1 {
		return e.runParallel(ctx, ordered)
	}

	result := &Result{}
	dirty := make(map[string]bool)

	for _, action := range ordered {
		addr := action.Resource.Address()

		if dep, ok := dependenciesClean(action, dirty); !ok {
			e.runner.Logger.WithResource(addr).Warnf("skipping, dependency %s did not converge", dep)
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

		switch out, _ := e.runAgent(ctx, action); out {
		case outcomeFailed:
			result.Failed = append(result.Failed, addr)
			dirty[addr] = true
		default:
			// Partial still counts as progress made.
			result.Implemented = append(result.Implemented, addr)
		}
	}

	return result, nil
}
