package resolver

import (
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/rulesync/rule"
)

// Options configures a Resolver. Zero values take the defaults.
type Options struct {
	// AutoMergeFields are the only fields a conflict may touch and still
	// be auto-resolvable. Defaults to tags and metadata.changelog.
	AutoMergeFields []string

	// PriorityFields are fields where the local value wins when a
	// three-way merge cannot decide.
	PriorityFields []string

	// ExcludeFields are never auto-merged.
	ExcludeFields []string

	// DisableAutoMerge turns off three-way merging entirely; conflicts
	// are still detected and classified.
	DisableAutoMerge bool

	// Clock overrides the time source for merged-rule timestamps. Tests
	// inject a fixed clock here.
	Clock func() time.Time

	Logger *slog.Logger
}

// Resolver detects and resolves conflicts between local and remote rules.
type Resolver struct {
	autoMerge map[string]bool
	priority  map[string]bool
	exclude   map[string]bool
	mergeOff  bool
	clock     func() time.Time
	logger    *slog.Logger
}

// New creates a resolver with the given options.
func New(opts Options) *Resolver {
	fields := opts.AutoMergeFields
	if fields == nil {
		fields = []string{rule.FieldTags, rule.FieldChangelog}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		autoMerge: toSet(fields),
		priority:  toSet(opts.PriorityFields),
		exclude:   toSet(opts.ExcludeFields),
		mergeOff:  opts.DisableAutoMerge,
		clock:     opts.Clock,
		logger:    logger,
	}
}

func toSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Detect compares a local and a remote version of a rule and returns the
// conflict between them, or nil when the semantically meaningful fields are
// all equal. base is the optional common ancestor.
func (r *Resolver) Detect(local, remote, base *rule.Rule) *Conflict {
	if local == nil || remote == nil {
		return nil
	}

	localFields := local.Fields()
	remoteFields := remote.Fields()

	if contentEqual(localFields, remoteFields) {
		return nil
	}

	diff := diffFields(localFields, remoteFields)

	conflict := &Conflict{
		RuleID:         local.ID,
		Local:          local,
		Remote:         remote,
		Base:           base,
		Diff:           diff,
		Type:           r.classify(local, remote, base),
		AutoResolvable: r.autoResolvable(diff),
	}

	r.logger.Debug("Detected sync conflict",
		slog.String("rule", local.ID),
		slog.String("type", string(conflict.Type)),
		slog.Int("fields", len(diff)),
		slog.Bool("auto_resolvable", conflict.AutoResolvable))

	return conflict
}

// classify picks the conflict type. Same version with different content is
// a concurrent modification; a local version older than the ancestor is a
// version mismatch; the same id filed under different categories diverged.
// Absent a finer signal, concurrent modification is the default.
func (r *Resolver) classify(local, remote, base *rule.Rule) ConflictType {
	if local.Category != "" && remote.Category != "" && local.Category != remote.Category {
		return ConflictCategoryDivergence
	}
	if local.Metadata.Version != "" && local.Metadata.Version == remote.Metadata.Version {
		return ConflictConcurrentModification
	}
	if base != nil && base.Metadata.Version != "" &&
		rule.CompareVersions(local.Metadata.Version, base.Metadata.Version) < 0 {
		return ConflictVersionMismatch
	}
	return ConflictConcurrentModification
}

// autoResolvable is true only if every changed field is on the auto-merge
// allow-list.
func (r *Resolver) autoResolvable(diff []FieldDiff) bool {
	if len(diff) == 0 {
		return false
	}
	for _, d := range diff {
		if !r.autoMerge[d.Field] {
			return false
		}
	}
	return true
}

// contentEqual compares the fixed set of semantically meaningful fields.
func contentEqual(localFields, remoteFields map[string]any) bool {
	for _, name := range rule.ContentFields {
		if !deepEqual(localFields[name], remoteFields[name]) {
			return false
		}
	}
	// Content also covers the variable fields both sides may carry.
	for _, name := range []string{rule.FieldTags, rule.FieldDependencies, rule.FieldChangelog} {
		if !deepEqual(localFields[name], remoteFields[name]) {
			return false
		}
	}
	return true
}

// diffFields classifies every field present on either side as added,
// removed, or modified.
func diffFields(localFields, remoteFields map[string]any) []FieldDiff {
	names := map[string]bool{}
	for n := range localFields {
		names[n] = true
	}
	for n := range remoteFields {
		names[n] = true
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var diff []FieldDiff
	for _, name := range sorted {
		lv, lok := localFields[name]
		rv, rok := remoteFields[name]
		switch {
		case !lok && rok:
			diff = append(diff, FieldDiff{Field: name, Type: FieldAdded, Remote: rv})
		case lok && !rok:
			diff = append(diff, FieldDiff{Field: name, Type: FieldRemoved, Local: lv})
		case !deepEqual(lv, rv):
			diff = append(diff, FieldDiff{Field: name, Type: FieldModified, Local: lv, Remote: rv})
		}
	}
	return diff
}

// Resolve applies a strategy to a detected conflict and returns the
// resulting rule. StrategyManual returns nil: the caller must decide.
func (r *Resolver) Resolve(conflict *Conflict, strategy Strategy) *rule.Rule {
	if conflict == nil {
		return nil
	}

	var resolved *rule.Rule
	switch strategy {
	case StrategyLocalWins:
		resolved = conflict.Local
	case StrategyRemoteWins:
		resolved = stripCollaborationFields(conflict.Remote)
	case StrategyAuto:
		if merged, unresolved := r.AutoMerge(conflict.Local, conflict.Remote, conflict.Base); len(unresolved) == 0 && merged != nil {
			resolved = merged
		} else {
			resolved = stripCollaborationFields(conflict.Remote)
		}
	case StrategyManual:
		return nil
	default:
		return nil
	}

	conflict.Resolution = resolved
	return resolved
}

// DetectBatch compares a local rule set against a remote snapshot. Pairs
// present on both sides go through Detect; rules present remotely but
// absent locally surface as deleted_locally conflicts defaulting to
// remote-wins.
func (r *Resolver) DetectBatch(local rule.Set, remote []*rule.Rule, base rule.Set) []*Conflict {
	var conflicts []*Conflict
	for _, remoteRule := range remote {
		localRule, present := local[remoteRule.ID]
		if !present {
			c := &Conflict{
				RuleID:     remoteRule.ID,
				Remote:     remoteRule,
				Type:       ConflictDeletedLocally,
				Resolution: stripCollaborationFields(remoteRule),
			}
			if base != nil {
				c.Base = base[remoteRule.ID]
			}
			conflicts = append(conflicts, c)
			continue
		}
		var baseRule *rule.Rule
		if base != nil {
			baseRule = base[remoteRule.ID]
		}
		if c := r.Detect(localRule, remoteRule, baseRule); c != nil {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// stripCollaborationFields drops fields only meaningful to the local
// collaboration layer (provenance) before adopting a remote rule.
func stripCollaborationFields(r *rule.Rule) *rule.Rule {
	if r == nil {
		return nil
	}
	out := r.Clone()
	out.Source = ""
	return out
}
