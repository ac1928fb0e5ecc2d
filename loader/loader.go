// Package loader walks an ordered list of rule sources and merges them into
// one canonical rule set, resolving same-id collisions per the configured
// strategy.
package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/rulesync/config"
	"github.com/c360studio/rulesync/rule"
)

// DefaultPatterns select the rule document files inside a source.
var DefaultPatterns = []string{"**/*.yaml", "**/*.yml", "**/*.json"}

// Source is one rule source directory. Sources are ordered from most global
// to most specific; the last source to define an id wins under the default
// strategy.
type Source struct {
	// Name identifies the source in conflict reports (e.g. "global").
	Name string
	// Path is the root directory. A missing directory is an empty source.
	Path string
	// Scope is the hierarchy level.
	Scope config.Scope
	// Patterns are doublestar globs relative to Path (DefaultPatterns if empty).
	Patterns []string
	// Ignore are doublestar globs excluded from loading.
	Ignore []string
}

// SourcesFromConfig converts configured sources into loader sources.
func SourcesFromConfig(cfgs []config.SourceConfig) []Source {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		name := c.Name
		if name == "" {
			name = string(c.Scope)
		}
		out = append(out, Source{
			Name:     name,
			Path:     c.Path,
			Scope:    c.Scope,
			Patterns: c.Patterns,
			Ignore:   c.Ignore,
		})
	}
	return out
}

// Result is the outcome of loading all sources.
type Result struct {
	// Rules is the canonical merged rule set, provenance stripped.
	Rules rule.Set
	// Conflicts records every same-id collision, including ones the
	// strategy resolved deterministically.
	Conflicts []MergeConflict
	// Errors collects per-file load failures.
	Errors []*LoadError
}

// Loader loads and merges rules from an ordered list of sources.
type Loader struct {
	sources  []Source
	strategy MergeStrategy
	logger   *slog.Logger

	// afterSave is a best-effort hook invoked after a successful save.
	// It must never fail the primary operation; failures are logged and
	// dropped.
	afterSave func(*rule.Rule)
}

// New creates a loader over the given sources.
func New(sources []Source, strategy MergeStrategy, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == "" {
		strategy = StrategyLocalWins
	}
	return &Loader{sources: sources, strategy: strategy, logger: logger}
}

// SetAfterSave installs the fire-and-forget post-save hook (typically a
// remote sync trigger).
func (l *Loader) SetAfterSave(hook func(*rule.Rule)) {
	l.afterSave = hook
}

// Load walks every source in order and merges the results by rule id.
func (l *Loader) Load() (*Result, error) {
	result := &Result{Rules: rule.Set{}}

	var loaded []*rule.Rule
	for _, src := range l.sources {
		rules, errs := l.loadSource(src)
		loaded = append(loaded, rules...)
		result.Errors = append(result.Errors, errs...)
	}

	result.Rules, result.Conflicts = mergeRules(loaded, l.strategy)

	// Provenance is only meaningful during merge.
	for _, r := range result.Rules {
		r.Source = ""
	}

	l.logger.Debug("Loaded rule sources",
		slog.Int("sources", len(l.sources)),
		slog.Int("rules", len(result.Rules)),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("errors", len(result.Errors)))

	return result, nil
}

// loadSource loads all rule documents under one source root. A missing root
// is an expected empty result, not an error.
func (l *Loader) loadSource(src Source) ([]*rule.Rule, []*LoadError) {
	info, err := os.Stat(src.Path)
	if os.IsNotExist(err) {
		l.logger.Debug("Rule source missing, skipping", slog.String("source", src.Name), slog.String("path", src.Path))
		return nil, nil
	}
	if err != nil || !info.IsDir() {
		return nil, []*LoadError{{Path: src.Path, Source: src.Name, Err: fmt.Errorf("not a readable directory")}}
	}

	patterns := src.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	var rules []*rule.Rule
	var loadErrs []*LoadError

	walkErr := filepath.WalkDir(src.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			loadErrs = append(loadErrs, &LoadError{Path: path, Source: src.Name, Err: err})
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src.Path, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !matchAny(patterns, rel) || matchAny(src.Ignore, rel) {
			return nil
		}

		parsed, err := parseFile(path)
		if err != nil {
			loadErrs = append(loadErrs, &LoadError{Path: path, Source: src.Name, Err: err})
			return nil
		}
		for _, r := range parsed {
			r.Source = src.Name
			rules = append(rules, r)
		}
		return nil
	})
	if walkErr != nil {
		loadErrs = append(loadErrs, &LoadError{Path: src.Path, Source: src.Name, Err: walkErr})
	}

	return rules, loadErrs
}

// parseFile parses one rule document. A file may contain a single rule or
// an array of rules; every entry must carry a non-empty id.
func parseFile(path string) ([]*rule.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var many []*rule.Rule
	if err := yaml.Unmarshal(data, &many); err != nil {
		var one rule.Rule
		if err := yaml.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("parse rule document: %w", err)
		}
		many = []*rule.Rule{&one}
	}

	out := make([]*rule.Rule, 0, len(many))
	for i, r := range many {
		if r == nil {
			continue
		}
		if r.ID == "" {
			return nil, fmt.Errorf("entry %d: rule id is required", i)
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
