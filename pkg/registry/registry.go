// Package registry declares the set of installable capabilities and their
// metadata: detection checks, per-family corrective actions, applicability
// predicates and dependency edges. The registry is built once at startup,
// validated (unique IDs, resolvable dependencies, acyclic graph, parseable
// predicates) and consumed read-only afterwards.
package registry

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rigup/rigup/pkg/profile"
)

// Registry is the validated, ordered capability table. Declaration order
// is preserved and used by the planner to break topological ties.
type Registry struct {
	caps []Capability
	byID map[string]int
}

// New validates the capability set and builds the registry. Any violation
// is a configuration error reported before a single mutation is attempted.
func New(caps []Capability) (*Registry, error) {
	r := &Registry{
		caps: caps,
		byID: make(map[string]int, len(caps)),
	}

	validate := validator.New()
	for i := range caps {
		c := &caps[i]
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("capability %q: %w", c.ID, err)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate capability id: %s", c.ID)
		}
		r.byID[c.ID] = i

		if err := parsePredicate(c.ID, c.When); err != nil {
			return nil, err
		}
	}

	for i := range caps {
		for _, dep := range caps[i].DependsOn {
			if _, ok := r.byID[dep]; !ok {
				return nil, fmt.Errorf("capability %s depends on unknown capability %s",
					caps[i].ID, dep)
			}
		}
	}

	if cycle := r.findCycle(); cycle != nil {
		return nil, fmt.Errorf("capability dependency cycle: %s",
			strings.Join(cycle, " -> "))
	}

	return r, nil
}

// Default builds the registry from the compiled-in capability table.
func Default() (*Registry, error) {
	return New(BuiltinCapabilities())
}

// Get returns the capability with the given ID.
func (r *Registry) Get(id string) (*Capability, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.caps[i], true
}

// All returns the capabilities in declaration order.
func (r *Registry) All() []Capability {
	return r.caps
}

// DeclarationIndex returns the declaration position of a capability, used
// for stable topological tie-breaking.
func (r *Registry) DeclarationIndex(id string) int {
	if i, ok := r.byID[id]; ok {
		return i
	}
	return len(r.caps)
}

// Applicable filters the capabilities to those whose predicate holds for
// the profile.
func (r *Registry) Applicable(p profile.Profile) ([]Capability, error) {
	out := make([]Capability, 0, len(r.caps))
	for i := range r.caps {
		ok, err := r.caps[i].Applies(p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r.caps[i])
		}
	}
	return out, nil
}

// findCycle runs depth-first search over the dependency edges and returns
// the first cycle path found, or nil.
func (r *Registry) findCycle() []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(r.caps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = grey
		stack = append(stack, id)
		c, _ := r.Get(id)
		for _, dep := range c.DependsOn {
			switch color[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case grey:
				// Walk back to where the cycle entered the stack.
				for i, onStack := range stack {
					if onStack == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for i := range r.caps {
		if color[r.caps[i].ID] == white {
			if cycle := visit(r.caps[i].ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
