package depgraph

// Cycle is an ordered list of rule ids forming a closed path through
// requires/extends edges. The first id is repeated conceptually, not
// literally: [A B C] means A -> B -> C -> A.
type Cycle []string

// DetectCircularDependencies finds every cycle reachable through the
// requires/extends edges. A depth-first traversal tracks the active
// recursion stack; revisiting a node already on the stack records the stack
// slice from that node to the current node inclusive as a cycle.
func (g *Graph) DetectCircularDependencies() []Cycle {
	var cycles []Cycle
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range g.edges[id] {
			if _, known := g.edges[dep]; !known {
				continue // missing targets are validation errors, not cycles
			}
			if onStack[dep] {
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := make(Cycle, len(stack)-start)
				copy(cycle, stack[start:])
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			visit(id)
		}
	}

	return cycles
}
