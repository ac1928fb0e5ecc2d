package depgraph

// ApplicationOrder computes a safe order to apply rules: a depth-first
// post-order over requires/extends edges, so every dependency precedes its
// dependents. Rules already enqueued are skipped. A rule currently on the
// active recursion stack (part of a cycle) is skipped without error; callers
// that need cycles to be fatal must check DetectCircularDependencies
// separately.
func (g *Graph) ApplicationOrder() []string {
	order := make([]string, 0, len(g.edges))
	enqueued := map[string]bool{}
	onStack := map[string]bool{}

	var visit func(id string)
	visit = func(id string) {
		if enqueued[id] || onStack[id] {
			return
		}
		onStack[id] = true
		for _, dep := range g.edges[id] {
			if _, known := g.edges[dep]; known {
				visit(dep)
			}
		}
		onStack[id] = false
		enqueued[id] = true
		order = append(order, id)
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}

	return order
}
