package rule

import "time"

// Field names used by the conflict resolver when diffing two versions of a
// rule. The resolver works on this flat view rather than on the struct so
// that field-level policies (auto-merge allow-list, priority fields) can be
// configured by name.
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldCategory     = "category"
	FieldTags         = "tags"
	FieldSeverity     = "severity"
	FieldExamples     = "examples"
	FieldDependencies = "dependencies"
	FieldChangelog    = "metadata.changelog"
)

// ContentFields is the fixed set of semantically meaningful fields compared
// when deciding whether two versions of a rule differ at all.
var ContentFields = []string{
	FieldName,
	FieldDescription,
	FieldCategory,
	FieldSeverity,
	FieldExamples,
}

// Fields returns the flat field view of the rule. Values are plain Go
// values suitable for structural deep comparison: strings, []string, and
// nested maps/slices for compound fields.
func (r *Rule) Fields() map[string]any {
	f := map[string]any{}
	if r.Name != "" {
		f[FieldName] = r.Name
	}
	if r.Description != "" {
		f[FieldDescription] = r.Description
	}
	if r.Category != "" {
		f[FieldCategory] = r.Category
	}
	if r.Severity != "" {
		f[FieldSeverity] = string(r.Severity)
	}
	if len(r.Tags) > 0 {
		f[FieldTags] = toAnySlice(r.Tags)
	}
	if r.Examples != nil {
		f[FieldExamples] = map[string]any{
			"good": toAnySlice(r.Examples.Good),
			"bad":  toAnySlice(r.Examples.Bad),
		}
	}
	if r.Dependencies != nil {
		f[FieldDependencies] = map[string]any{
			"requires":  toAnySlice(r.Dependencies.Requires),
			"conflicts": toAnySlice(r.Dependencies.Conflicts),
			"extends":   r.Dependencies.Extends,
		}
	}
	if len(r.Metadata.Changelog) > 0 {
		entries := make([]any, 0, len(r.Metadata.Changelog))
		for _, e := range r.Metadata.Changelog {
			entries = append(entries, map[string]any{
				"version":     e.Version,
				"date":        e.Date,
				"description": e.Description,
				"author":      e.Author,
			})
		}
		f[FieldChangelog] = entries
	}
	return f
}

// SetField writes a flat field value back onto the rule. Unknown field
// names are ignored; the resolver only writes back names it read via Fields.
func (r *Rule) SetField(name string, value any) {
	switch name {
	case FieldName:
		r.Name, _ = value.(string)
	case FieldDescription:
		r.Description, _ = value.(string)
	case FieldCategory:
		r.Category, _ = value.(string)
	case FieldSeverity:
		if s, ok := value.(string); ok {
			r.Severity = Severity(s)
		}
	case FieldTags:
		r.Tags = toStringSlice(value)
	case FieldExamples:
		if m, ok := value.(map[string]any); ok {
			r.Examples = &Examples{
				Good: toStringSlice(m["good"]),
				Bad:  toStringSlice(m["bad"]),
			}
		} else if value == nil {
			r.Examples = nil
		}
	case FieldDependencies:
		if m, ok := value.(map[string]any); ok {
			deps := &Dependencies{
				Requires:  toStringSlice(m["requires"]),
				Conflicts: toStringSlice(m["conflicts"]),
			}
			deps.Extends, _ = m["extends"].(string)
			r.Dependencies = deps
		} else if value == nil {
			r.Dependencies = nil
		}
	case FieldChangelog:
		entries, ok := value.([]any)
		if !ok {
			return
		}
		r.Metadata.Changelog = nil
		for _, raw := range entries {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			e := ChangeEntry{}
			e.Version, _ = m["version"].(string)
			e.Description, _ = m["description"].(string)
			e.Author, _ = m["author"].(string)
			if t, ok := m["date"].(time.Time); ok {
				e.Date = t
			}
			r.Metadata.Changelog = append(r.Metadata.Changelog, e)
		}
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
