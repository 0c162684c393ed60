package apply

import (
	"context"

	"github.com/featurectl/featurectl/pkg/engine"
)

// runMarket posts every create and update as a task on the execution
// market. Nothing runs locally; resources stay unconverged in state
// until a worker delivers and the result is verified by a later apply.
func (e *executor) runMarket(ctx context.Context, ordered []engine.PlanAction) (*Result, error) {
	result := &Result{}

	for _, action := range ordered {
		addr := action.Resource.Address()

		if action.Action == engine.ActionDelete {
			if err := e.applyDelete(ctx, action); err != nil {
				return nil, err
			}
			result.Implemented = append(result.Implemented, addr)
			continue
		}

		task, err := e.postToMarket(ctx, action)
		if err != nil {
			e.runner.Logger.WithResource(addr).WithError(err).Error("market task failed")
			result.Failed = append(result.Failed, addr)
			continue
		}

		e.runner.Logger.WithResource(addr).Infof("posted market task %s", task.ID)
		result.MarketPending = append(result.MarketPending, addr)
	}

	return result, nil
}
