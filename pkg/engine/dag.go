package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rigup/rigup/pkg/registry"
)

// topoSort orders the given capability IDs so that every dependency
// precedes its dependents. Only edges between members of the set are
// considered. Ties are broken by registry declaration order, which keeps
// plans deterministic across runs.
func topoSort(reg *registry.Registry, ids []string) ([]string, error) {
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}

	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		c, _ := reg.Get(id)
		for _, dep := range c.DependsOn {
			if !member[dep] {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]string, 0, len(ids))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return reg.DeclarationIndex(ready[i]) < reg.DeclarationIndex(ready[j])
		})
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(ids) {
		var stuck []string
		for _, id := range ids {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}

// DOT renders the plan's dependency edges in Graphviz DOT format.
func (p *Plan) DOT(reg *registry.Registry) string {
	var b strings.Builder
	b.WriteString("digraph plan {\n")
	b.WriteString("  rankdir=LR;\n")
	member := make(map[string]bool, len(p.Entries))
	for _, e := range p.Entries {
		member[e.CapabilityID] = true
	}
	for _, e := range p.Entries {
		shape := "box"
		if e.Interactive {
			shape = "ellipse"
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s];\n", e.CapabilityID, e.Label, shape)
	}
	for _, e := range p.Entries {
		c, _ := reg.Get(e.CapabilityID)
		if c == nil {
			continue
		}
		for _, dep := range c.DependsOn {
			if member[dep] {
				fmt.Fprintf(&b, "  %q -> %q;\n", dep, e.CapabilityID)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}
