// Package resolver classifies divergence between local and remote versions
// of a rule, computes field-level diffs, and attempts three-way auto-merges
// where every changed field is safe to merge.
package resolver

import "github.com/c360studio/rulesync/rule"

// ConflictType discriminates sync conflicts. One tagged type is shared by
// the resolver, the orchestrator, and reporting code.
type ConflictType string

const (
	// ConflictConcurrentModification means both sides edited the same
	// version of the rule.
	ConflictConcurrentModification ConflictType = "concurrent_modification"

	// ConflictVersionMismatch means the local rule is older than the
	// common ancestor, so the local side missed remote updates.
	ConflictVersionMismatch ConflictType = "version_mismatch"

	// ConflictDeletedLocally means the rule exists remotely but is absent
	// from the local set.
	ConflictDeletedLocally ConflictType = "deleted_locally"

	// ConflictCategoryDivergence means the same rule id is filed under
	// different categories on each side. Never merged silently.
	ConflictCategoryDivergence ConflictType = "category_divergence"
)

// FieldChangeType classifies one field in a diff.
type FieldChangeType string

const (
	FieldAdded    FieldChangeType = "added"    // only the remote side has it
	FieldRemoved  FieldChangeType = "removed"  // only the local side has it
	FieldModified FieldChangeType = "modified" // both sides have it, values differ
)

// FieldDiff is one field-level difference between local and remote.
type FieldDiff struct {
	Field  string          `json:"field"`
	Type   FieldChangeType `json:"type"`
	Local  any             `json:"local,omitempty"`
	Remote any             `json:"remote,omitempty"`
}

// Strategy selects how a sync conflict is resolved.
type Strategy string

const (
	// StrategyLocalWins returns the local rule unmodified.
	StrategyLocalWins Strategy = "local-wins"

	// StrategyRemoteWins returns the remote rule, stripped of
	// collaboration-only fields.
	StrategyRemoteWins Strategy = "remote-wins"

	// StrategyAuto returns the three-way auto-merge result when one is
	// available and falls back to remote-wins otherwise.
	StrategyAuto Strategy = "auto"

	// StrategyManual returns nothing; the caller must decide.
	StrategyManual Strategy = "manual"

	// StrategyForce discards all conflicts unconditionally. Only
	// meaningful at the orchestrator level.
	StrategyForce Strategy = "force"
)

// Conflict is one divergence between a local and a remote rule. It is
// created during a sync attempt and either resolved immediately or surfaced
// to the caller; the core never stores it long-term.
type Conflict struct {
	RuleID string     `json:"rule_id"`
	Local  *rule.Rule `json:"local,omitempty"`
	Remote *rule.Rule `json:"remote,omitempty"`

	// Base is the common ancestor from the last successful sync; it feeds
	// the three-way merge. Nil means no ancestor is known.
	Base *rule.Rule `json:"base,omitempty"`

	Diff           []FieldDiff  `json:"diff,omitempty"`
	Type           ConflictType `json:"type"`
	AutoResolvable bool         `json:"auto_resolvable"`

	// Resolution holds the resolved rule once a strategy has been applied;
	// nil while unresolved.
	Resolution *rule.Rule `json:"resolution,omitempty"`
}
