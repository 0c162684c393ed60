package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps agent names to backend constructors. A comma-separated
// name like "claude,codex" resolves to a chain.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Backend
}

// NewRegistry returns a registry preloaded with the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Backend)}
	r.Register("claude", func() Backend { return NewClaudeBackend() })
	r.Register("codex", func() Backend { return NewCodexBackend() })
	return r
}

// Register adds a named backend constructor.
func (r *Registry) Register(name string, factory func() Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get resolves a name to a backend. Comma-separated names produce a
// chained backend trying each in order.
func (r *Registry) Get(name string) (Backend, error) {
	parts := strings.Split(name, ",")
	if len(parts) > 1 {
		backends := make([]Backend, 0, len(parts))
		for _, part := range parts {
			b, err := r.Get(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		}
		return NewChainedBackend(backends...), nil
	}

	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent: %q (available: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return factory(), nil
}
