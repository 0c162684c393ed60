package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ChainedBackend tries each backend in order until one succeeds. The
// chain is the only place featurectl retries: a single backend gets
// exactly one attempt per resource. One chain instance is shared by
// every worker in a parallel apply, so the counters are guarded.
type ChainedBackend struct {
	backends []Backend

	mu             sync.Mutex
	lastSuccessful string
	attempts       int
}

// NewChainedBackend builds a chain from the given backends.
func NewChainedBackend(backends ...Backend) *ChainedBackend {
	return &ChainedBackend{backends: backends}
}

// Name returns "chained(a,b,...)".
func (c *ChainedBackend) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return "chained(" + strings.Join(names, ",") + ")"
}

// Available reports whether any backend in the chain is available.
func (c *ChainedBackend) Available() bool {
	for _, b := range c.backends {
		if b.Available() {
			return true
		}
	}
	return false
}

// LastSuccessful returns the name of the backend that last succeeded,
// or empty if none has.
func (c *ChainedBackend) LastSuccessful() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccessful
}

// Attempts returns how many times the chain has been executed.
func (c *ChainedBackend) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Execute tries each backend until one succeeds. On success the output
// is prefixed with which attempt won; when all fail the error aggregates
// every backend's failure.
func (c *ChainedBackend) Execute(ctx context.Context, req Request) *Result {
	var failures []string
	c.mu.Lock()
	c.attempts++
	c.lastSuccessful = ""
	c.mu.Unlock()

	for i, b := range c.backends {
		result := b.Execute(ctx, req)
		if result.Success {
			c.mu.Lock()
			c.lastSuccessful = b.Name()
			c.mu.Unlock()
			result.Output = fmt.Sprintf("[ChainedAgent] Success with %s (attempt %d/%d)\n%s",
				b.Name(), i+1, len(c.backends), result.Output)
			return result
		}
		failures = append(failures, fmt.Sprintf("Agent %s: %s", b.Name(), result.Error))
	}

	return &Result{
		Success: false,
		Error: fmt.Sprintf("[ChainedAgent] All %d agents failed:\n%s",
			len(c.backends), strings.Join(failures, "\n")),
	}
}
