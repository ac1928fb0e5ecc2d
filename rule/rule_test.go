package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name:    "valid minimal rule",
			rule:    Rule{ID: "naming-001", Severity: SeverityWarning},
			wantErr: false,
		},
		{
			name:    "missing id",
			rule:    Rule{Name: "anonymous"},
			wantErr: true,
		},
		{
			name:    "unknown severity",
			rule:    Rule{ID: "naming-001", Severity: "fatal"},
			wantErr: true,
		},
		{
			name:    "requires itself",
			rule:    Rule{ID: "naming-001", Dependencies: &Dependencies{Requires: []string{"naming-001"}}},
			wantErr: true,
		},
		{
			name:    "extends itself",
			rule:    Rule{ID: "naming-001", Dependencies: &Dependencies{Extends: "naming-001"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleIDPrefix(t *testing.T) {
	assert.Equal(t, "naming", (&Rule{ID: "naming-001"}).IDPrefix())
	assert.Equal(t, "security", (&Rule{ID: "security-input-002"}).IDPrefix())
	assert.Equal(t, "standalone", (&Rule{ID: "standalone"}).IDPrefix())
}

func TestRuleClone(t *testing.T) {
	orig := &Rule{
		ID:   "naming-001",
		Tags: []string{"style"},
		Dependencies: &Dependencies{
			Requires: []string{"core-001"},
		},
		Metadata: Metadata{
			Version:   "1.0.0",
			Changelog: []ChangeEntry{{Version: "1.0.0", Description: "initial"}},
		},
	}

	clone := orig.Clone()
	clone.Tags[0] = "changed"
	clone.Dependencies.Requires[0] = "other-001"
	clone.Metadata.Changelog[0].Description = "rewritten"

	assert.Equal(t, "style", orig.Tags[0])
	assert.Equal(t, "core-001", orig.Dependencies.Requires[0])
	assert.Equal(t, "initial", orig.Metadata.Changelog[0].Description)
}

func TestRuleFieldsRoundTrip(t *testing.T) {
	r := &Rule{
		ID:          "naming-001",
		Name:        "Use camelCase",
		Description: "Variables use camelCase.",
		Category:    "style/naming",
		Severity:    SeverityWarning,
		Tags:        []string{"style", "naming"},
		Examples:    &Examples{Good: []string{"userName"}, Bad: []string{"user_name"}},
		Metadata: Metadata{
			Changelog: []ChangeEntry{{Version: "1.0.0", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Description: "initial"}},
		},
	}

	fields := r.Fields()
	require.Contains(t, fields, FieldTags)
	require.Contains(t, fields, FieldChangelog)

	out := &Rule{ID: r.ID}
	for name, value := range fields {
		out.SetField(name, value)
	}

	assert.Equal(t, r.Name, out.Name)
	assert.Equal(t, r.Description, out.Description)
	assert.Equal(t, r.Category, out.Category)
	assert.Equal(t, r.Severity, out.Severity)
	assert.Equal(t, r.Tags, out.Tags)
	assert.Equal(t, r.Examples, out.Examples)
	assert.Equal(t, r.Metadata.Changelog, out.Metadata.Changelog)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0", "1.0", 0},
		{"1", "1.0.0", 0},
		{"1.0", "1.0.1", -1},
		{"1.0.0", "1.0.1", -1},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"", "0.0.0", 0},
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBumpPatch(t *testing.T) {
	assert.Equal(t, "1.0.1", BumpPatch("1.0.0"))
	assert.Equal(t, "1.2.10", BumpPatch("1.2.9"))
	assert.Equal(t, "1.0.1", BumpPatch("1.0"))
	assert.Equal(t, "0.0.1", BumpPatch(""))
}
