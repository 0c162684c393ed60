package spec

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/state"
)

// File is the YAML document shape of a spec file.
//
//	version: "1"
//	backend:
//	  type: local
//	  path: featurectl.state.json
//	resources:
//	  feature:
//	    auth_login:
//	      attributes: {...}
//	      depends_on: [feature.base]
//	      files: [src/auth/login.py]
//	      tests: [tests/test_login.py]
type File struct {
	Version   string                             `yaml:"version" validate:"required"`
	Backend   state.Config                       `yaml:"backend"`
	Resources map[string]map[string]ResourceDecl `yaml:"resources"`
}

// ResourceDecl is a single resource declaration in the spec file.
type ResourceDecl struct {
	Attributes map[string]any `yaml:"attributes"`
	DependsOn  []string       `yaml:"depends_on" validate:"dive,contains=."`
	Files      []string       `yaml:"files"`
	Tests      []string       `yaml:"tests"`
}

var validate = validator.New()

// Parse decodes and validates a spec document from raw YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, engine.NewPermanentError("failed to parse spec file", err).
			WithCode(engine.ErrCodeValidation)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("spec validation failed: %v", err), err).
			WithCode(engine.ErrCodeValidation)
	}

	return &f, nil
}

// ParseFile reads and parses a spec file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("failed to read spec file: %s", path), err).
			WithCode(engine.ErrCodeNotFound)
	}
	return Parse(data)
}

// ToSpec converts the parsed file into an engine spec. Declared
// resources start at status missing; the planner compares against state.
func (f *File) ToSpec() *engine.Spec {
	s := engine.NewSpec()
	if f.Version != "" {
		s.Version = f.Version
	}

	for resourceType, byName := range f.Resources {
		for name, decl := range byName {
			attrs := decl.Attributes
			if attrs == nil {
				attrs = make(map[string]any)
			}
			s.Add(&engine.Resource{
				Type:       resourceType,
				Name:       name,
				Status:     engine.StatusMissing,
				Attributes: attrs,
				DependsOn:  decl.DependsOn,
				Files:      decl.Files,
				Tests:      decl.Tests,
			})
		}
	}
	return s
}

// ValidateSpec checks referential integrity of the spec: every
// depends_on address must be declared, and the dependency graph must be
// acyclic. Returns a list of human-readable problems, empty when valid.
func ValidateSpec(s *engine.Spec) []string {
	var problems []string

	addresses := make(map[string]bool, len(s.Resources))
	for addr := range s.Resources {
		addresses[addr] = true
	}

	for _, r := range s.List("") {
		for _, dep := range r.DependsOn {
			if !strings.Contains(dep, ".") {
				problems = append(problems,
					fmt.Sprintf("%s: malformed dependency address %q", r.Address(), dep))
				continue
			}
			if !addresses[dep] {
				problems = append(problems,
					fmt.Sprintf("%s: depends on undeclared resource %s", r.Address(), dep))
			}
		}
	}

	// Cycle detection over the whole declared graph.
	actions := make([]engine.PlanAction, 0, len(s.Resources))
	for _, r := range s.List("") {
		actions = append(actions, engine.PlanAction{Action: engine.ActionCreate, Resource: r})
	}
	if _, err := engine.TopologicalSort(actions, engine.NewState()); err != nil {
		problems = append(problems, err.Error())
	}

	sort.Strings(problems)
	return problems
}
