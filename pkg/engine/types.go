package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResourceStatus represents the tracked status of a resource in state.
type ResourceStatus string

const (
	// StatusMissing indicates no implementation exists yet.
	StatusMissing ResourceStatus = "missing"

	// StatusPartial indicates an incomplete implementation.
	StatusPartial ResourceStatus = "partial"

	// StatusImplemented indicates a working, verified implementation.
	StatusImplemented ResourceStatus = "implemented"

	// StatusBroken indicates an implementation that existed but now fails.
	StatusBroken ResourceStatus = "broken"

	// StatusDeprecated indicates a resource marked for removal.
	StatusDeprecated ResourceStatus = "deprecated"
)

// Done reports whether the status counts as converged. Deprecated
// resources are intentionally treated as done: they need no further work.
func (s ResourceStatus) Done() bool {
	return s == StatusImplemented || s == StatusDeprecated
}

// Validate checks that the status is one of the known values.
func (s ResourceStatus) Validate() error {
	switch s {
	case StatusMissing, StatusPartial, StatusImplemented, StatusBroken, StatusDeprecated:
		return nil
	default:
		return NewPermanentError(fmt.Sprintf("invalid resource status: %q", s), nil).
			WithCode(ErrCodeValidation)
	}
}

// SymbolStatus tracks an individual symbol (function, class, method)
// within a resource. It carries finer-grained implementation evidence
// than file-level tracking.
type SymbolStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // function, class, method, interface, type, enum
	Status    string `json:"status"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
	Parent    string `json:"parent,omitempty"` // class name for methods
	File      string `json:"file,omitempty"`
}

// QualifiedName returns "Parent.Name" for methods, or just Name.
func (s SymbolStatus) QualifiedName() string {
	if s.Parent != "" {
		return s.Parent + "." + s.Name
	}
	return s.Name
}

// Resource is a named unit of trackable work: a feature, endpoint, or
// module declared in spec and tracked in state.
//
// The (Type, Name) pair is the resource's identity; its address
// "type.name" is immutable after creation.
type Resource struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Status ResourceStatus `json:"status"`

	// Attributes is an open key-value bag of spec-declared metadata.
	// The schema is intentionally unconstrained; a "files" key is
	// semantically significant to verification and prompt building.
	Attributes map[string]any `json:"attributes,omitempty"`

	// DependsOn lists addresses of resources this one depends on.
	// References, not ownership.
	DependsOn []string `json:"depends_on,omitempty"`

	// Files and Tests are evidence of implementation.
	Files []string `json:"files,omitempty"`
	Tests []string `json:"tests,omitempty"`

	// Symbols maps qualified names ("Class.method" or bare function
	// names) to symbol-level status records.
	Symbols map[string]SymbolStatus `json:"symbols,omitempty"`

	// Locked resources are not overwritten by refresh scans.
	Locked bool `json:"locked,omitempty"`

	// Source records how the entry came to be: "manual" or "auto".
	Source string `json:"source,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Address returns the terraform-style resource address "type.name".
func (r *Resource) Address() string {
	return r.Type + "." + r.Name
}

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return fmt.Sprintf("%s (%s)", r.Address(), r.Status)
}

// SplitAddress splits "type.name" into its components. The name may
// itself contain dots; only the first separator is significant.
func SplitAddress(address string) (resourceType, name string, err error) {
	idx := strings.Index(address, ".")
	if idx <= 0 || idx == len(address)-1 {
		return "", "", NewPermanentError(
			fmt.Sprintf("invalid resource address %q: want type.name", address), nil).
			WithCode(ErrCodeValidation)
	}
	return address[:idx], address[idx+1:], nil
}

// Spec is the desired-state declaration of all resources.
type Spec struct {
	Version   string               `json:"version"`
	Resources map[string]*Resource `json:"resources"`
}

// NewSpec returns an empty spec.
func NewSpec() *Spec {
	return &Spec{Version: "1", Resources: make(map[string]*Resource)}
}

// Get returns the resource at the given address, or nil.
func (s *Spec) Get(address string) *Resource {
	return s.Resources[address]
}

// Add inserts or replaces a resource in the spec.
func (s *Spec) Add(r *Resource) {
	if s.Resources == nil {
		s.Resources = make(map[string]*Resource)
	}
	s.Resources[r.Address()] = r
}

// List returns all resources sorted by address, optionally filtered by type.
func (s *Spec) List(typeFilter string) []*Resource {
	out := make([]*Resource, 0, len(s.Resources))
	for _, r := range s.Resources {
		if typeFilter != "" && r.Type != typeFilter {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// State is the record of what has actually been done. It owns a
// monotonically increasing serial counter incremented on every mutation.
type State struct {
	Version     string               `json:"version"`
	Serial      int64                `json:"serial"`
	Resources   map[string]*Resource `json:"resources"`
	LastUpdated *time.Time           `json:"last_updated,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Version: "1", Resources: make(map[string]*Resource)}
}

// Get returns the resource at the given address, or nil.
func (s *State) Get(address string) *Resource {
	return s.Resources[address]
}

// Set inserts or updates a resource, bumping the serial counter and
// stamping timestamps.
func (s *State) Set(r *Resource) {
	if s.Resources == nil {
		s.Resources = make(map[string]*Resource)
	}
	now := time.Now()
	r.UpdatedAt = &now
	if _, exists := s.Resources[r.Address()]; !exists && r.CreatedAt == nil {
		r.CreatedAt = &now
	}
	s.Resources[r.Address()] = r
	s.Serial++
	s.LastUpdated = &now
}

// Remove deletes a resource from state, bumping the serial counter.
// Returns the removed resource, or nil if absent.
func (s *State) Remove(address string) *Resource {
	r, ok := s.Resources[address]
	if !ok {
		return nil
	}
	delete(s.Resources, address)
	now := time.Now()
	s.Serial++
	s.LastUpdated = &now
	return r
}

// List returns all resources sorted by address, optionally filtered by type.
func (s *State) List(typeFilter string) []*Resource {
	out := make([]*Resource, 0, len(s.Resources))
	for _, r := range s.Resources {
		if typeFilter != "" && r.Type != typeFilter {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// ListByStatus returns all resources with the given status, sorted by address.
func (s *State) ListByStatus(status ResourceStatus) []*Resource {
	out := make([]*Resource, 0)
	for _, r := range s.Resources {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// ActionType enumerates what the planner decided for a resource.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionNoop   ActionType = "no-op"
)

// priority orders actions within a plan: deletes first, then creates,
// then updates, with no-ops last.
func (a ActionType) priority() int {
	switch a {
	case ActionDelete:
		return 0
	case ActionCreate:
		return 1
	case ActionUpdate:
		return 2
	case ActionNoop:
		return 3
	default:
		return 4
	}
}

// Symbol returns the terraform-style one-character action marker.
func (a ActionType) Symbol() string {
	switch a {
	case ActionCreate:
		return "+"
	case ActionUpdate:
		return "~"
	case ActionDelete:
		return "-"
	case ActionNoop:
		return " "
	default:
		return "?"
	}
}

// PlanAction is a single action in a plan. For create/update it carries
// the spec's version of the resource; for delete, the state's version.
type PlanAction struct {
	Action   ActionType `json:"action"`
	Resource *Resource  `json:"resource"`
	Reason   string     `json:"reason,omitempty"`
}

// String implements fmt.Stringer.
func (a PlanAction) String() string {
	return fmt.Sprintf("  %s %s", a.Action.Symbol(), a.Resource.Address())
}

// Plan is the computed diff between spec and state, expressed as an
// ordered list of actions. Plans are computed fresh each run and never
// persisted.
type Plan struct {
	Actions []PlanAction `json:"actions"`
}

// HasChanges reports whether any action is not a no-op.
func (p *Plan) HasChanges() bool {
	for _, a := range p.Actions {
		if a.Action != ActionNoop {
			return true
		}
	}
	return false
}

// Creates returns the create actions in plan order.
func (p *Plan) Creates() []PlanAction { return p.byAction(ActionCreate) }

// Updates returns the update actions in plan order.
func (p *Plan) Updates() []PlanAction { return p.byAction(ActionUpdate) }

// Deletes returns the delete actions in plan order.
func (p *Plan) Deletes() []PlanAction { return p.byAction(ActionDelete) }

func (p *Plan) byAction(t ActionType) []PlanAction {
	var out []PlanAction
	for _, a := range p.Actions {
		if a.Action == t {
			out = append(out, a)
		}
	}
	return out
}

// Summary returns a one-line human-readable plan summary.
func (p *Plan) Summary() string {
	if !p.HasChanges() {
		return "No changes. State matches spec."
	}
	var parts []string
	if n := len(p.Creates()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d to create", n))
	}
	if n := len(p.Updates()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d to update", n))
	}
	if n := len(p.Deletes()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d to delete", n))
	}
	return fmt.Sprintf("Plan: %s.", strings.Join(parts, ", "))
}
