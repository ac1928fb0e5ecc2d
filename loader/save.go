package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/rulesync/rule"
)

// RulePath computes the deterministic file path for a rule under a source
// root: the category becomes the directory path and the id prefix (text
// before the first "-") becomes the file name.
func RulePath(root string, r *rule.Rule) string {
	parts := []string{root}
	if r.Category != "" {
		parts = append(parts, strings.Split(r.Category, "/")...)
	}
	parts = append(parts, r.IDPrefix()+".yaml")
	return filepath.Join(parts...)
}

// Save writes a rule to its deterministic path under root, creating missing
// directories. Files group rules by id prefix, so an existing file is
// read back and the entry with the same id replaced. On success the given
// cache is updated and the post-save hook fires; hook failures never fail
// the save.
func (l *Loader) Save(root string, r *rule.Rule, cache rule.Set) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	path := RulePath(root, r)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create rule directory: %w", err)
	}

	out := r.Clone()
	out.Source = ""

	entries := []*rule.Rule{out}
	if existing, err := parseFile(path); err == nil {
		replaced := false
		entries = entries[:0]
		for _, e := range existing {
			if e.ID == out.ID {
				entries = append(entries, out)
				replaced = true
			} else {
				entries = append(entries, e)
			}
		}
		if !replaced {
			entries = append(entries, out)
		}
	}

	var payload any = entries
	if len(entries) == 1 {
		payload = entries[0]
	}
	data, err := yaml.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal rule %s: %w", out.ID, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write rule %s: %w", out.ID, err)
	}

	if cache != nil {
		cache[out.ID] = out
	}

	if l.afterSave != nil {
		// Fire-and-forget: the hook must never fail the save.
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					l.logger.Warn("Post-save hook panicked", slog.String("rule", out.ID), slog.Any("panic", rec))
				}
			}()
			l.afterSave(out)
		}()
	}

	l.logger.Debug("Saved rule", slog.String("rule", out.ID), slog.String("path", path))
	return path, nil
}
