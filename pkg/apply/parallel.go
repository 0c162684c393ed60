package apply

import (
	"context"
	"sync"

	"github.com/featurectl/featurectl/pkg/engine"
)

// completion reports the terminal outcome of one dispatched action back
// to the coordinator loop.
type completion struct {
	address string
	ok      bool
}

// runParallel executes independent actions concurrently across a pool of
// MaxWorkers goroutines. Actions become eligible once every dependency
// within the batch has completed; dependencies already satisfied in
// state were filtered out by the scheduler. A failed or skipped action
// skips its dependents transitively.
func (e *executor) runParallel(ctx context.Context, ordered []engine.PlanAction) (*Result, error) {
	byAddr := make(map[string]engine.PlanAction, len(ordered))
	inBatch := make(map[string]bool, len(ordered))
	for _, action := range ordered {
		addr := action.Resource.Address()
		byAddr[addr] = action
		inBatch[addr] = true
	}

	// pending counts unmet in-batch dependencies per action; dependents
	// is the reverse edge set used to release waiters on completion.
	// Dependencies already satisfied in state do not constrain order,
	// matching the scheduler.
	pending := make(map[string]int, len(ordered))
	dependents := make(map[string][]string)
	for _, action := range ordered {
		addr := action.Resource.Address()
		pending[addr] = 0
		for _, dep := range action.Resource.DependsOn {
			if !inBatch[dep] {
				continue
			}
			if tracked := e.state.Get(dep); tracked != nil && tracked.Status == engine.StatusImplemented {
				continue
			}
			pending[addr]++
			dependents[dep] = append(dependents[dep], addr)
		}
	}

	// ordered is topologically sorted, so walking it preserves the
	// deterministic dispatch order within each ready set.
	var ready []string
	for _, action := range ordered {
		if pending[action.Resource.Address()] == 0 {
			ready = append(ready, action.Resource.Address())
		}
	}

	var (
		resultMu sync.Mutex
		result   = &Result{}
	)
	dirty := make(map[string]bool)
	processed := make(map[string]bool)

	doneCh := make(chan completion)
	running := 0
	remaining := len(ordered)

	dispatch := func(action engine.PlanAction) {
		addr := action.Resource.Address()

		if action.Action == engine.ActionDelete {
			err := e.applyDelete(ctx, action)
			resultMu.Lock()
			if err != nil {
				e.runner.Logger.WithResource(addr).WithError(err).Error("failed to remove resource from state")
				result.Failed = append(result.Failed, addr)
			} else {
				result.Implemented = append(result.Implemented, addr)
			}
			resultMu.Unlock()
			doneCh <- completion{address: addr, ok: err == nil}
			return
		}

		out, _ := e.runAgent(ctx, action)
		resultMu.Lock()
		if out == outcomeFailed {
			result.Failed = append(result.Failed, addr)
		} else {
			result.Implemented = append(result.Implemented, addr)
		}
		resultMu.Unlock()
		doneCh <- completion{address: addr, ok: out != outcomeFailed}
	}

	skip := func(addr, dep string) completion {
		e.runner.Logger.WithResource(addr).Warnf("skipping, dependency %s did not converge", dep)
		resultMu.Lock()
		result.Skipped = append(result.Skipped, addr)
		resultMu.Unlock()
		return completion{address: addr, ok: false}
	}

	// release propagates a completion to the action's dependents and
	// returns the addresses that just became ready.
	release := func(c completion) []string {
		if !c.ok {
			dirty[c.address] = true
		}
		var freed []string
		for _, dependent := range dependents[c.address] {
			pending[dependent]--
			if pending[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		return freed
	}

	for remaining > 0 {
		// Drain the ready set. Actions whose dependencies went dirty
		// are skipped inline; the rest go to the pool.
		for len(ready) > 0 && running < e.runner.Config.MaxWorkers {
			addr := ready[0]
			ready = ready[1:]
			action := byAddr[addr]
			processed[addr] = true

			if dep, ok := dependenciesClean(action, dirty); !ok {
				remaining--
				ready = append(ready, release(skip(addr, dep))...)
				continue
			}

			running++
			go dispatch(action)
		}

		if running == 0 {
			if len(ready) > 0 {
				continue
			}
			// Nothing running and nothing ready but actions remain:
			// their dependencies can never complete in this batch.
			for _, action := range ordered {
				addr := action.Resource.Address()
				if processed[addr] {
					continue
				}
				processed[addr] = true
				remaining--
				e.runner.Logger.WithResource(addr).Warn("skipping, dependencies were never released")
				resultMu.Lock()
				result.Skipped = append(result.Skipped, addr)
				resultMu.Unlock()
			}
			break
		}

		c := <-doneCh
		running--
		remaining--
		ready = append(ready, release(c)...)
	}

	return result, nil
}
