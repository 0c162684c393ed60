package apply

import (
	"fmt"
	"time"
)

// Result aggregates the outcome of one apply run. Each resource lands
// in exactly one bag. Partially implemented resources count as
// implemented here because the run made progress on them; their state
// entry carries the partial status.
type Result struct {
	// Implemented lists addresses that reached implemented or partial.
	Implemented []string

	// Failed lists addresses whose agent run or action failed.
	Failed []string

	// Skipped lists addresses skipped by the user or by dependency failure.
	Skipped []string

	// MarketPending lists addresses handed off to the execution market.
	MarketPending []string

	Duration time.Duration
}

// Total returns the number of resources the run touched.
func (r *Result) Total() int {
	return len(r.Implemented) + len(r.Failed) + len(r.Skipped) + len(r.MarketPending)
}

// Summary renders a one-line apply summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("Apply complete: %d implemented, %d failed, %d skipped, %d market pending (%.1fs)",
		len(r.Implemented), len(r.Failed), len(r.Skipped), len(r.MarketPending), r.Duration.Seconds())
}
