package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyErrorKind discriminates the structured validation errors.
type DependencyErrorKind string

const (
	ErrMissingRequirement DependencyErrorKind = "missing_requirement"
	ErrMissingExtends     DependencyErrorKind = "missing_extends"
	ErrSelfReference      DependencyErrorKind = "self_reference"
	ErrConflict           DependencyErrorKind = "conflict"
	ErrCycle              DependencyErrorKind = "cycle"
)

// DependencyError is one structured validation finding. Findings are
// reported, never thrown mid-validation.
type DependencyError struct {
	Kind   DependencyErrorKind `json:"kind"`
	RuleID string              `json:"rule_id"`
	// Target is the referenced id for missing/conflict findings, or the
	// cycle path for cycle findings.
	Target string `json:"target,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Suggestion is a remedy hint, where one applies.
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return e.Message
}

// Report aggregates every per-rule validation finding plus every detected
// cycle for one rule set.
type Report struct {
	Errors []*DependencyError `json:"errors"`
	Cycles []Cycle            `json:"cycles"`
}

// OK returns true when the rule set has no dependency problems.
func (r *Report) OK() bool {
	return len(r.Errors) == 0 && len(r.Cycles) == 0
}

// ValidateRule reports the dependency problems of a single rule against the
// set the graph was built from: missing requirements, a missing extends
// target, self-requirement, and conflicts with rules present in the set.
func (g *Graph) ValidateRule(id string) []*DependencyError {
	r, ok := g.rules[id]
	if !ok {
		return nil
	}

	var errs []*DependencyError

	for _, req := range r.Requires() {
		if req == id {
			errs = append(errs, &DependencyError{
				Kind:       ErrSelfReference,
				RuleID:     id,
				Target:     req,
				Message:    fmt.Sprintf("rule %s requires itself", id),
				Suggestion: "remove the self-requirement",
			})
			continue
		}
		if _, present := g.rules[req]; !present {
			errs = append(errs, &DependencyError{
				Kind:       ErrMissingRequirement,
				RuleID:     id,
				Target:     req,
				Message:    fmt.Sprintf("rule %s requires %s, which is not in the rule set", id, req),
				Suggestion: fmt.Sprintf("add rule %s or drop the requirement", req),
			})
		}
	}

	if ext := r.Extends(); ext != "" {
		if ext == id {
			errs = append(errs, &DependencyError{
				Kind:       ErrSelfReference,
				RuleID:     id,
				Target:     ext,
				Message:    fmt.Sprintf("rule %s extends itself", id),
				Suggestion: "remove the self-extension",
			})
		} else if _, present := g.rules[ext]; !present {
			errs = append(errs, &DependencyError{
				Kind:       ErrMissingExtends,
				RuleID:     id,
				Target:     ext,
				Message:    fmt.Sprintf("rule %s extends %s, which is not in the rule set", id, ext),
				Suggestion: fmt.Sprintf("add rule %s or drop the extension", ext),
			})
		}
	}

	for _, other := range r.ConflictsWith() {
		if _, enabled := g.rules[other]; enabled {
			errs = append(errs, &DependencyError{
				Kind:       ErrConflict,
				RuleID:     id,
				Target:     other,
				Message:    fmt.Sprintf("rule %s conflicts with enabled rule %s", id, other),
				Suggestion: fmt.Sprintf("disable either %s or %s", id, other),
			})
		}
	}

	return errs
}

// ValidateAll aggregates every per-rule validation finding plus every
// detected cycle into one report.
func (g *Graph) ValidateAll() *Report {
	report := &Report{}

	ids := make([]string, 0, len(g.rules))
	for id := range g.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		report.Errors = append(report.Errors, g.ValidateRule(id)...)
	}

	report.Cycles = g.DetectCircularDependencies()
	for _, cycle := range report.Cycles {
		path := strings.Join(append([]string(nil), cycle...), " -> ")
		report.Errors = append(report.Errors, &DependencyError{
			Kind:       ErrCycle,
			RuleID:     cycle[0],
			Target:     path,
			Message:    fmt.Sprintf("circular dependency: %s -> %s", path, cycle[0]),
			Suggestion: "resolve the circular dependency by removing one of the edges",
		})
	}

	return report
}
