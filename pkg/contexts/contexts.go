// Package contexts tracks what each agent knows about each resource.
// After an agent works on a resource, a context entry records the files
// it touched and any knowledge worth carrying into the next prompt, so
// later invocations can build on earlier ones instead of rediscovering
// the codebase.
package contexts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Freshness buckets for context entries.
const (
	StatusFresh  = "fresh"  // updated within the last day
	StatusRecent = "recent" // updated within the last week
	StatusStale  = "stale"  // older than a week
)

// Entry records one agent's accumulated context on one resource.
type Entry struct {
	Agent    string `json:"agent"`
	Resource string `json:"resource"`

	// FilesTouched lists files the agent created or modified.
	FilesTouched []string `json:"files_touched,omitempty"`

	// Knowledge holds short free-form notes for future prompts.
	Knowledge []string `json:"knowledge,omitempty"`

	// ContributedStatus is the resource status the agent's work led to.
	ContributedStatus string `json:"contributed_status,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Status classifies the entry by age.
func (e *Entry) Status() string {
	age := time.Since(e.UpdatedAt)
	switch {
	case age < 24*time.Hour:
		return StatusFresh
	case age < 7*24*time.Hour:
		return StatusRecent
	default:
		return StatusStale
	}
}

// AgeString renders the entry age for display ("3h ago", "2d ago").
func (e *Entry) AgeString() string {
	age := time.Since(e.UpdatedAt)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// Registry holds context entries keyed by (agent, resource), persisted
// as a JSON file alongside the state. Safe for concurrent use: the
// parallel executor registers entries from worker goroutines while
// prompt building reads them.
type Registry struct {
	path string

	mu      sync.RWMutex
	Entries map[string]*Entry `json:"entries"`
}

func key(agent, resource string) string {
	return agent + "|" + resource
}

// Load reads a registry from disk, returning an empty one if the file
// does not exist.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, Entries: make(map[string]*Entry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading context registry: %w", err)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decoding context registry: %w", err)
	}
	if r.Entries == nil {
		r.Entries = make(map[string]*Entry)
	}
	return r, nil
}

// Save writes the registry back to disk. The lock is held across the
// write so concurrent saves cannot interleave on the file.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding context registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating context directory: %w", err)
	}
	return os.WriteFile(r.path, data, 0644)
}

// Register records or merges a context entry. Files and knowledge
// accumulate across calls; status and timestamp are replaced.
func (r *Registry) Register(agent, resource string, filesTouched, knowledge []string, contributedStatus string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(agent, resource)
	entry, ok := r.Entries[k]
	if !ok {
		entry = &Entry{Agent: agent, Resource: resource}
		r.Entries[k] = entry
	}

	entry.FilesTouched = mergeUnique(entry.FilesTouched, filesTouched)
	entry.Knowledge = mergeUnique(entry.Knowledge, knowledge)
	if contributedStatus != "" {
		entry.ContributedStatus = contributedStatus
	}
	entry.UpdatedAt = time.Now().UTC()
}

// ForResource returns every agent's entry for one resource, most
// recently updated first. Entries are copies, so callers never alias
// state that a later Register mutates.
func (r *Registry) ForResource(resource string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, e := range r.Entries {
		if e.Resource == resource {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// ForAgent returns every resource entry for one agent, most recently
// updated first.
func (r *Registry) ForAgent(agent string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, e := range r.Entries {
		if e.Agent == agent {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func mergeUnique(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range added {
		if s != "" && !seen[s] {
			seen[s] = true
			existing = append(existing, s)
		}
	}
	return existing
}
