package resolver

import (
	"sort"
	"time"

	"github.com/c360studio/rulesync/rule"
)

// AutoMerge reconciles two divergent edits of a rule using their common
// ancestor to distinguish changed from unchanged fields. It returns the
// merged rule and the names of fields it could not resolve. A merge with no
// unresolved fields succeeds and bumps the patch component of the version.
//
// base may be nil, in which case every present field counts as changed on
// the side that carries it.
func (r *Resolver) AutoMerge(local, remote, base *rule.Rule) (*rule.Rule, []string) {
	if r.mergeOff || local == nil || remote == nil {
		return nil, nil
	}

	localFields := local.Fields()
	remoteFields := remote.Fields()
	baseFields := map[string]any{}
	if base != nil {
		baseFields = base.Fields()
	}

	names := map[string]bool{}
	for n := range localFields {
		names[n] = true
	}
	for n := range remoteFields {
		names[n] = true
	}
	for n := range baseFields {
		names[n] = true
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	merged := map[string]any{}
	var unresolved []string

	for _, name := range sorted {
		bv := baseFields[name]
		lv := localFields[name]
		rv := remoteFields[name]

		// Exclusion only matters when the sides actually disagree; an
		// excluded field that is identical everywhere merges cleanly.
		if r.exclude[name] && !deepEqual(lv, rv) {
			unresolved = append(unresolved, name)
			continue
		}

		localChanged := !deepEqual(lv, bv)
		remoteChanged := !deepEqual(rv, bv)

		switch {
		case !localChanged && !remoteChanged:
			merged[name] = bv
		case localChanged && !remoteChanged:
			merged[name] = lv
		case !localChanged && remoteChanged:
			merged[name] = rv
		case deepEqual(lv, rv):
			merged[name] = lv
		default:
			la, lok := lv.([]any)
			ra, rok := rv.([]any)
			if lok && rok {
				ba, _ := bv.([]any)
				merged[name] = mergeArrays(ba, la, ra)
				continue
			}
			if r.autoMerge[name] {
				merged[name] = rv
				continue
			}
			if r.priority[name] {
				merged[name] = lv
				continue
			}
			unresolved = append(unresolved, name)
		}
	}

	out := local.Clone()
	for _, name := range sorted {
		if v, ok := merged[name]; ok {
			out.SetField(name, v)
		}
	}

	if len(unresolved) == 0 {
		version := local.Metadata.Version
		if rule.CompareVersions(remote.Metadata.Version, version) > 0 {
			version = remote.Metadata.Version
		}
		out.Metadata.Version = rule.BumpPatch(version)
		out.Updated = r.now()
	}

	return out, unresolved
}

// mergeArrays performs the three-way set reconciliation: the merged array
// is the base minus anything removed by either side, plus anything added by
// either side, de-duplicated by deep equality.
func mergeArrays(base, local, remote []any) []any {
	var out []any
	for _, e := range base {
		if containsDeep(local, e) && containsDeep(remote, e) {
			out = append(out, e)
		}
	}
	for _, e := range local {
		if !containsDeep(base, e) && !containsDeep(out, e) {
			out = append(out, e)
		}
	}
	for _, e := range remote {
		if !containsDeep(base, e) && !containsDeep(out, e) {
			out = append(out, e)
		}
	}
	return out
}

func (r *Resolver) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}
