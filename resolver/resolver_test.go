package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/rulesync/rule"
)

func baseRule() *rule.Rule {
	return &rule.Rule{
		ID:          "naming-001",
		Name:        "Use camelCase",
		Description: "Variables use camelCase.",
		Category:    "style/naming",
		Severity:    rule.SeverityWarning,
		Tags:        []string{"style"},
		Metadata:    rule.Metadata{Version: "1.0.0"},
	}
}

func TestDetectNoConflictWhenEqual(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	remote := baseRule()

	assert.Nil(t, r.Detect(local, remote, nil))
}

func TestDetectConcurrentModification(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	remote := baseRule()
	remote.Description = "Variables and fields use camelCase."

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)
	assert.Equal(t, ConflictConcurrentModification, c.Type)
	assert.Equal(t, "naming-001", c.RuleID)
	assert.False(t, c.AutoResolvable, "description is not on the auto-merge list")

	require.Len(t, c.Diff, 1)
	assert.Equal(t, rule.FieldDescription, c.Diff[0].Field)
	assert.Equal(t, FieldModified, c.Diff[0].Type)
}

func TestDetectVersionMismatch(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	local.Metadata.Version = "1.0.0"
	remote := baseRule()
	remote.Metadata.Version = "1.2.0"
	remote.Description = "Updated upstream."
	base := baseRule()
	base.Metadata.Version = "1.1.0"

	c := r.Detect(local, remote, base)
	require.NotNil(t, c)
	assert.Equal(t, ConflictVersionMismatch, c.Type)
}

func TestDetectCategoryDivergence(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	remote := baseRule()
	remote.Category = "security/naming"

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)
	assert.Equal(t, ConflictCategoryDivergence, c.Type)
	assert.False(t, c.AutoResolvable)
}

func TestDetectTagsOnlyIsAutoResolvable(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	local.Tags = []string{"a"}
	remote := baseRule()
	remote.Tags = []string{"a", "b"}

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)
	assert.True(t, c.AutoResolvable)
}

func TestDetectSeverityNotAutoResolvable(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	remote := baseRule()
	remote.Severity = rule.SeverityError

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)
	assert.False(t, c.AutoResolvable)
}

func TestDiffAddedAndRemoved(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	local.Examples = &rule.Examples{Good: []string{"userName"}}
	remote := baseRule()
	remote.Examples = nil
	remote.Tags = nil
	remote.Name = "Use camelCase everywhere"

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)

	byField := map[string]FieldDiff{}
	for _, d := range c.Diff {
		byField[d.Field] = d
	}
	assert.Equal(t, FieldRemoved, byField[rule.FieldExamples].Type)
	assert.Equal(t, FieldRemoved, byField[rule.FieldTags].Type)
	assert.Equal(t, FieldModified, byField[rule.FieldName].Type)
}

func TestResolveStrategies(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	local.Description = "local edit"
	local.Source = "project"
	remote := baseRule()
	remote.Description = "remote edit"
	remote.Source = "remote"

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)

	assert.Same(t, local, r.Resolve(c, StrategyLocalWins))

	resolved := r.Resolve(c, StrategyRemoteWins)
	require.NotNil(t, resolved)
	assert.Equal(t, "remote edit", resolved.Description)
	assert.Empty(t, resolved.Source, "collaboration-only fields are stripped")

	assert.Nil(t, r.Resolve(c, StrategyManual))
}

func TestResolveAutoFallsBackToRemote(t *testing.T) {
	r := New(Options{})
	local := baseRule()
	local.Description = "local edit"
	remote := baseRule()
	remote.Description = "remote edit"

	c := r.Detect(local, remote, nil)
	require.NotNil(t, c)

	// Description is not mergeable, so auto falls back to remote-wins.
	resolved := r.Resolve(c, StrategyAuto)
	require.NotNil(t, resolved)
	assert.Equal(t, "remote edit", resolved.Description)
}

func TestResolveAutoUsesCommonAncestor(t *testing.T) {
	r := New(Options{})

	base := baseRule()
	base.Tags = []string{"x", "y"}
	local := baseRule()
	local.Tags = []string{"x", "y", "z"} // added z
	remote := baseRule()
	remote.Tags = []string{"y"} // removed x

	c := r.Detect(local, remote, base)
	require.NotNil(t, c)
	require.Same(t, base, c.Base)

	// The ancestor distinguishes the remote removal of x from a local
	// addition, so x stays removed instead of resurfacing.
	resolved := r.Resolve(c, StrategyAuto)
	require.NotNil(t, resolved)
	assert.Equal(t, []string{"y", "z"}, resolved.Tags)
}

func TestDetectBatchDeletedLocally(t *testing.T) {
	r := New(Options{})
	local := rule.NewSet([]*rule.Rule{baseRule()})
	deleted := baseRule()
	deleted.ID = "naming-002"
	deleted.Source = "remote"

	conflicts := r.DetectBatch(local, []*rule.Rule{baseRule(), deleted}, nil)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictDeletedLocally, conflicts[0].Type)
	assert.Equal(t, "naming-002", conflicts[0].RuleID)
	require.NotNil(t, conflicts[0].Resolution, "deleted_locally defaults to remote-wins")
	assert.Empty(t, conflicts[0].Resolution.Source)
}

func TestAutoMergeThreeWayArrays(t *testing.T) {
	r := New(Options{Clock: func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }})

	base := baseRule()
	base.Tags = []string{"x", "y"}
	local := baseRule()
	local.Tags = []string{"x", "y", "z"} // added z
	remote := baseRule()
	remote.Tags = []string{"y"} // removed x

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	require.NotNil(t, merged)
	assert.Equal(t, []string{"y", "z"}, merged.Tags)
	assert.Equal(t, "1.0.1", merged.Metadata.Version, "successful merge bumps the patch component")
}

func TestAutoMergeOneSideChanged(t *testing.T) {
	r := New(Options{})

	base := baseRule()
	local := baseRule()
	remote := baseRule()
	remote.Description = "remote only change"

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	assert.Equal(t, "remote only change", merged.Description)
}

func TestAutoMergeBothChangedSameValue(t *testing.T) {
	r := New(Options{})

	base := baseRule()
	local := baseRule()
	local.Description = "same new text"
	remote := baseRule()
	remote.Description = "same new text"

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	assert.Equal(t, "same new text", merged.Description)
}

func TestAutoMergeUnresolvedScalar(t *testing.T) {
	r := New(Options{})

	base := baseRule()
	local := baseRule()
	local.Description = "local text"
	remote := baseRule()
	remote.Description = "remote text"

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.NotNil(t, merged)
	assert.Equal(t, []string{rule.FieldDescription}, unresolved)
	assert.Equal(t, "1.0.0", merged.Metadata.Version, "failed merge does not bump the version")
}

func TestAutoMergePriorityFieldLocalWins(t *testing.T) {
	r := New(Options{PriorityFields: []string{rule.FieldSeverity}})

	base := baseRule()
	local := baseRule()
	local.Severity = rule.SeverityError
	remote := baseRule()
	remote.Severity = rule.SeverityInfo

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	assert.Equal(t, rule.SeverityError, merged.Severity)
}

func TestAutoMergeAllowListRemoteWins(t *testing.T) {
	// Name on the allow-list: a both-sides scalar change takes remote.
	r := New(Options{AutoMergeFields: []string{rule.FieldName}})

	base := baseRule()
	local := baseRule()
	local.Name = "local name"
	remote := baseRule()
	remote.Name = "remote name"

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	assert.Equal(t, "remote name", merged.Name)
}

func TestAutoMergeDisabled(t *testing.T) {
	r := New(Options{DisableAutoMerge: true})
	merged, unresolved := r.AutoMerge(baseRule(), baseRule(), nil)
	assert.Nil(t, merged)
	assert.Nil(t, unresolved)
}

func TestAutoMergeExcludedField(t *testing.T) {
	r := New(Options{ExcludeFields: []string{rule.FieldDescription}})

	base := baseRule()
	local := baseRule()
	local.Description = "local text"
	remote := baseRule()
	remote.Description = "remote text"

	_, unresolved := r.AutoMerge(local, remote, base)
	assert.Equal(t, []string{rule.FieldDescription}, unresolved)
}

func TestAutoMergeExcludedFieldUnchanged(t *testing.T) {
	// An excluded field identical on both sides never blocks the merge.
	r := New(Options{ExcludeFields: []string{rule.FieldDescription}})

	base := baseRule()
	local := baseRule()
	local.Tags = []string{"style", "extra"}
	remote := baseRule()

	merged, unresolved := r.AutoMerge(local, remote, base)
	require.Empty(t, unresolved)
	assert.Equal(t, base.Description, merged.Description)
	assert.Equal(t, []string{"style", "extra"}, merged.Tags)
}

func TestMergeArraysDeduplicates(t *testing.T) {
	out := mergeArrays(
		[]any{"a"},
		[]any{"a", "b"},
		[]any{"a", "b"},
	)
	assert.Equal(t, []any{"a", "b"}, out)
}
