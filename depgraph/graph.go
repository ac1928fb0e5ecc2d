// Package depgraph builds a directed dependency graph from a merged rule
// set and analyzes it: cycle detection, application ordering, and
// explicit/mutual conflict reporting.
package depgraph

import (
	"sort"

	"github.com/c360studio/rulesync/rule"
)

// Graph is the dependency graph for one rule set. It is derived state,
// rebuilt on demand and never persisted.
type Graph struct {
	rules rule.Set

	// edges maps each rule id to its dependencies (requires plus extends),
	// directed node -> dependency.
	edges map[string][]string
}

// Build constructs the graph from a merged rule set.
func Build(rules rule.Set) *Graph {
	g := &Graph{
		rules: rules,
		edges: make(map[string][]string, len(rules)),
	}
	for id, r := range rules {
		deps := append([]string(nil), r.Requires()...)
		if ext := r.Extends(); ext != "" {
			deps = append(deps, ext)
		}
		g.edges[id] = deps
	}
	return g
}

// Dependencies returns the outgoing edges for a rule id.
func (g *Graph) Dependencies(id string) []string {
	return g.edges[id]
}

// sortedIDs returns all node ids in lexical order, so traversals are
// deterministic.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
