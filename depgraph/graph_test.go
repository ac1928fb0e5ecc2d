package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/rulesync/rule"
)

func ruleWith(id string, deps *rule.Dependencies) *rule.Rule {
	return &rule.Rule{ID: id, Dependencies: deps}
}

func setOf(rules ...*rule.Rule) rule.Set {
	return rule.NewSet(rules)
}

func TestDetectCircularDependenciesThreeNodeCycle(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"c"}}),
		ruleWith("c", &rule.Dependencies{Requires: []string{"a"}}),
	))

	cycles := g.DetectCircularDependencies()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, []string(cycles[0]))
}

func TestDetectCircularDependenciesNone(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"c"}}),
		ruleWith("c", nil),
	))
	assert.Empty(t, g.DetectCircularDependencies())
}

func TestDetectCircularDependenciesSelfLoopViaExtends(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Extends: "b"}),
		ruleWith("b", &rule.Dependencies{Extends: "a"}),
	))
	cycles := g.DetectCircularDependencies()
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0], 2)
}

func TestDetectCircularDependenciesMultiple(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"a"}}),
		ruleWith("x", &rule.Dependencies{Requires: []string{"y"}}),
		ruleWith("y", &rule.Dependencies{Requires: []string{"x"}}),
	))
	assert.Len(t, g.DetectCircularDependencies(), 2)
}

func TestApplicationOrderChain(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"c"}}),
		ruleWith("c", nil),
	))

	order := g.ApplicationOrder()
	require.Len(t, order, 3)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["c"], pos["b"])
	assert.Less(t, pos["b"], pos["a"])
}

func TestApplicationOrderSkipsCycleMembersWithoutError(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"a"}}),
		ruleWith("c", nil),
	))

	order := g.ApplicationOrder()
	// Every node still appears exactly once; cycle edges are skipped.
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
}

func TestApplicationOrderIgnoresMissingTargets(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"ghost"}}),
	))
	assert.Equal(t, []string{"a"}, g.ApplicationOrder())
}

func TestConflictPairsCanonicalized(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Conflicts: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Conflicts: []string{"a"}}),
		ruleWith("c", &rule.Dependencies{Conflicts: []string{"a"}}),
	))

	pairs := g.ConflictPairs()
	require.Len(t, pairs, 2)

	assert.Equal(t, "a", pairs[0].A)
	assert.Equal(t, "b", pairs[0].B)
	assert.True(t, pairs[0].Mutual)
	assert.False(t, pairs[0].Explicit)

	assert.Equal(t, "a", pairs[1].A)
	assert.Equal(t, "c", pairs[1].B)
	assert.False(t, pairs[1].Mutual)
	assert.True(t, pairs[1].Explicit)
}

func TestValidateRuleFindings(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"ghost"}, Extends: "phantom"}),
		ruleWith("b", &rule.Dependencies{Conflicts: []string{"a"}}),
	))

	errs := g.ValidateRule("a")
	require.Len(t, errs, 2)

	kinds := []DependencyErrorKind{errs[0].Kind, errs[1].Kind}
	assert.Contains(t, kinds, ErrMissingRequirement)
	assert.Contains(t, kinds, ErrMissingExtends)
	for _, e := range errs {
		assert.NotEmpty(t, e.Message)
		assert.NotEmpty(t, e.Suggestion)
	}

	conflictErrs := g.ValidateRule("b")
	require.Len(t, conflictErrs, 1)
	assert.Equal(t, ErrConflict, conflictErrs[0].Kind)
	assert.Equal(t, "a", conflictErrs[0].Target)
}

func TestValidateAllIncludesCycles(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", &rule.Dependencies{Requires: []string{"a"}}),
	))

	report := g.ValidateAll()
	assert.False(t, report.OK())
	require.Len(t, report.Cycles, 1)

	var cycleErr *DependencyError
	for _, e := range report.Errors {
		if e.Kind == ErrCycle {
			cycleErr = e
		}
	}
	require.NotNil(t, cycleErr)
	assert.Contains(t, cycleErr.Message, "circular dependency")
	assert.Contains(t, cycleErr.Message, "->")
}

func TestValidateAllCleanSet(t *testing.T) {
	g := Build(setOf(
		ruleWith("a", &rule.Dependencies{Requires: []string{"b"}}),
		ruleWith("b", nil),
	))
	assert.True(t, g.ValidateAll().OK())
}
