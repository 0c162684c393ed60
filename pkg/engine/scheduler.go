package engine

import "sort"

// TopologicalSort orders plan actions so that every dependency within
// the batch executes before its dependents, using Kahn's algorithm.
//
// Only dependencies that are themselves in the batch AND not already
// implemented in state constrain the ordering: dependencies outside the
// batch are assumed satisfied (the caller's responsibility), and
// already-converged dependencies impose no edge. When several actions
// are simultaneously ready, the ready queue is sorted lexicographically
// on address before extraction so run order is reproducible.
//
// Returns a *CyclicDependencyError naming every unordered address when
// the actionable subset contains one or more cycles.
func TopologicalSort(actions []PlanAction, state *State) ([]PlanAction, error) {
	actionMap := make(map[string]PlanAction, len(actions))
	for _, a := range actions {
		actionMap[a.Resource.Address()] = a
	}

	implemented := make(map[string]bool)
	for addr, r := range state.Resources {
		if r.Status == StatusImplemented {
			implemented[addr] = true
		}
	}

	// Edge dep -> addr means "dep must come before addr".
	graph := make(map[string][]string, len(actions))
	inDegree := make(map[string]int, len(actions))
	for _, a := range actions {
		addr := a.Resource.Address()
		graph[addr] = nil
		inDegree[addr] = 0
	}

	for _, a := range actions {
		addr := a.Resource.Address()
		for _, dep := range a.Resource.DependsOn {
			if _, inBatch := actionMap[dep]; inBatch && !implemented[dep] {
				graph[dep] = append(graph[dep], addr)
				inDegree[addr]++
			}
		}
	}

	queue := make([]string, 0, len(actions))
	for addr, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, addr)
		}
	}

	sorted := make([]string, 0, len(actions))
	for len(queue) > 0 {
		sort.Strings(queue)
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)
		for _, dependent := range graph[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(actions) {
		emitted := make(map[string]bool, len(sorted))
		for _, addr := range sorted {
			emitted[addr] = true
		}
		var remaining []string
		for addr := range actionMap {
			if !emitted[addr] {
				remaining = append(remaining, addr)
			}
		}
		sort.Strings(remaining)
		return nil, &CyclicDependencyError{Addresses: remaining}
	}

	ordered := make([]PlanAction, 0, len(actions))
	for _, addr := range sorted {
		ordered = append(ordered, actionMap[addr])
	}
	return ordered, nil
}
