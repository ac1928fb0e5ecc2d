// Package rule defines the rule data model shared by the loader, the
// dependency analyzer, the conflict resolver, and the sync orchestrator.
package rule

import (
	"fmt"
	"strings"
	"time"
)

// Severity indicates how strongly a rule violation should be reported.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IsValid returns true for a known severity value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Examples holds good/bad code snippets illustrating a rule.
type Examples struct {
	Good []string `json:"good,omitempty" yaml:"good,omitempty"`
	Bad  []string `json:"bad,omitempty" yaml:"bad,omitempty"`
}

// Dependencies declares relations to other rules by id.
type Dependencies struct {
	// Requires lists rule ids that must be present and applied first.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// Conflicts lists rule ids that cannot be enabled together with this one.
	Conflicts []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	// Extends names a single rule this one specializes.
	Extends string `json:"extends,omitempty" yaml:"extends,omitempty"`
}

// ChangeEntry is one immutable changelog snapshot.
type ChangeEntry struct {
	Version     string    `json:"version" yaml:"version"`
	Date        time.Time `json:"date" yaml:"date"`
	Description string    `json:"description" yaml:"description"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
}

// Metadata carries versioning information for a rule.
type Metadata struct {
	// Version is a semantic version string (e.g. "1.2.0").
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Changelog is an append-only ordered list of change entries.
	Changelog []ChangeEntry `json:"changelog,omitempty" yaml:"changelog,omitempty"`
}

// Rule is a single policy document.
type Rule struct {
	// ID is the stable, globally unique identifier (e.g. "naming-001").
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// Description explains what the rule enforces.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Category is a slash-delimited classification path (e.g. "style/naming").
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Tags is an order-irrelevant label set.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Severity indicates violation severity.
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`

	// Examples holds good/bad code snippets.
	Examples *Examples `json:"examples,omitempty" yaml:"examples,omitempty"`

	// Dependencies declares requires/conflicts/extends relations.
	Dependencies *Dependencies `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Created is when the rule was first authored.
	Created time.Time `json:"created,omitempty" yaml:"created,omitempty"`

	// Updated is when the rule content last changed.
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	// Metadata carries the semantic version and changelog.
	Metadata Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Source records which source produced this instance. It is only
	// meaningful during merge and is stripped from merged output.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Validate checks structural invariants on a single rule. Cross-rule
// invariants (missing requirements, cycles) are the dependency analyzer's job.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity)
	}
	if r.Dependencies != nil {
		for _, req := range r.Dependencies.Requires {
			if req == r.ID {
				return fmt.Errorf("rule %s: requires itself", r.ID)
			}
		}
		if r.Dependencies.Extends == r.ID && r.Dependencies.Extends != "" {
			return fmt.Errorf("rule %s: extends itself", r.ID)
		}
	}
	return nil
}

// IDPrefix returns the text before the first "-" in the rule id, used to
// group rules into files on disk.
func (r *Rule) IDPrefix() string {
	if i := strings.Index(r.ID, "-"); i > 0 {
		return r.ID[:i]
	}
	return r.ID
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	if r.Examples != nil {
		ex := Examples{
			Good: append([]string(nil), r.Examples.Good...),
			Bad:  append([]string(nil), r.Examples.Bad...),
		}
		out.Examples = &ex
	}
	if r.Dependencies != nil {
		deps := Dependencies{
			Requires:  append([]string(nil), r.Dependencies.Requires...),
			Conflicts: append([]string(nil), r.Dependencies.Conflicts...),
			Extends:   r.Dependencies.Extends,
		}
		out.Dependencies = &deps
	}
	out.Metadata.Changelog = append([]ChangeEntry(nil), r.Metadata.Changelog...)
	return &out
}

// Requires returns the declared requirements, never nil.
func (r *Rule) Requires() []string {
	if r.Dependencies == nil {
		return nil
	}
	return r.Dependencies.Requires
}

// ConflictsWith returns the declared conflicts, never nil.
func (r *Rule) ConflictsWith() []string {
	if r.Dependencies == nil {
		return nil
	}
	return r.Dependencies.Conflicts
}

// Extends returns the extends target, or "" when the rule extends nothing.
func (r *Rule) Extends() string {
	if r.Dependencies == nil {
		return ""
	}
	return r.Dependencies.Extends
}

// Set is an id-keyed collection of rules. It is passed by value between the
// loader, the analyzer, and the orchestrator instead of living in a global.
type Set map[string]*Rule

// NewSet builds a set from a list of rules. Later entries with a duplicate
// id replace earlier ones.
func NewSet(rules []*Rule) Set {
	s := make(Set, len(rules))
	for _, r := range rules {
		if r != nil && r.ID != "" {
			s[r.ID] = r
		}
	}
	return s
}

// List returns the rules in the set. Order is unspecified.
func (s Set) List() []*Rule {
	out := make([]*Rule, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	return out
}
