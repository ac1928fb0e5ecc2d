package depgraph

import "sort"

// ConflictPair is an undirected conflict between two rules, canonicalized
// so that A < B and (A,B) is never double-counted as (B,A).
type ConflictPair struct {
	A string `json:"a"`
	B string `json:"b"`

	// Mutual is true when both rules declare the conflict.
	Mutual bool `json:"mutual"`

	// Explicit is true when only one side declares the conflict.
	Explicit bool `json:"explicit"`
}

// ConflictPairs collects every declared conflict edge as a canonical
// undirected pair.
func (g *Graph) ConflictPairs() []ConflictPair {
	declared := map[[2]string]int{}

	for id, r := range g.rules {
		for _, other := range r.ConflictsWith() {
			a, b := id, other
			if a > b {
				a, b = b, a
			}
			key := [2]string{a, b}
			if id == a {
				declared[key] |= 1
			} else {
				declared[key] |= 2
			}
		}
	}

	pairs := make([]ConflictPair, 0, len(declared))
	for key, sides := range declared {
		pairs = append(pairs, ConflictPair{
			A:        key[0],
			B:        key[1],
			Mutual:   sides == 3,
			Explicit: sides != 3,
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}
