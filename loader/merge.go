package loader

import "github.com/c360studio/rulesync/rule"

// MergeStrategy decides which source wins a same-id collision during load.
type MergeStrategy string

const (
	// StrategyLocalWins keeps the most specific, most recently loaded
	// source's rule. This is the default.
	StrategyLocalWins MergeStrategy = "local-wins"

	// StrategyParentWins keeps the earliest, most global source's rule.
	StrategyParentWins MergeStrategy = "parent-wins"

	// StrategyLatestWins keeps the rule with the newer updated timestamp.
	StrategyLatestWins MergeStrategy = "latest-wins"
)

// MergeConflict records one same-id collision between sources. Conflicts
// are recorded even when the strategy resolves them deterministically, for
// observability; they are not persisted beyond the load that produced them.
type MergeConflict struct {
	// RuleID is the colliding rule id.
	RuleID string `json:"rule_id"`
	// Sources lists every source that defined the id, in load order.
	Sources []string `json:"sources"`
	// Resolution is the strategy that decided the winner.
	Resolution MergeStrategy `json:"resolution"`
	// Winner is the name of the source whose rule was kept.
	Winner string `json:"winner"`
}

// mergeRules merges rules by id in load order. For every id defined by more
// than one source a MergeConflict is recorded. Re-running the merge on the
// same input yields the same winners.
func mergeRules(loaded []*rule.Rule, strategy MergeStrategy) (rule.Set, []MergeConflict) {
	merged := rule.Set{}
	sources := map[string][]string{}

	for _, incoming := range loaded {
		existing, ok := merged[incoming.ID]
		if !ok {
			merged[incoming.ID] = incoming
			sources[incoming.ID] = []string{incoming.Source}
			continue
		}
		sources[incoming.ID] = append(sources[incoming.ID], incoming.Source)
		if pickIncoming(existing, incoming, strategy) {
			merged[incoming.ID] = incoming
		}
	}

	var conflicts []MergeConflict
	for id, srcs := range sources {
		if len(srcs) < 2 {
			continue
		}
		conflicts = append(conflicts, MergeConflict{
			RuleID:     id,
			Sources:    srcs,
			Resolution: strategy,
			Winner:     merged[id].Source,
		})
	}

	return merged, conflicts
}

// pickIncoming reports whether the incoming rule replaces the existing one.
func pickIncoming(existing, incoming *rule.Rule, strategy MergeStrategy) bool {
	switch strategy {
	case StrategyParentWins:
		return false
	case StrategyLatestWins:
		return incoming.Updated.After(existing.Updated)
	default: // StrategyLocalWins
		return true
	}
}
