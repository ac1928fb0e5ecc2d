// Package config provides configuration loading and management for rulesync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scope identifies the hierarchy level a rule source belongs to.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
	ScopePackage Scope = "package"
)

// Config represents the complete rulesync configuration
type Config struct {
	Sources []SourceConfig `yaml:"sources"`
	Merge   MergeConfig    `yaml:"merge"`
	Remote  RemoteConfig   `yaml:"remote"`
	Sync    SyncConfig     `yaml:"sync"`
	Events  EventsConfig   `yaml:"events"`
}

// SourceConfig describes one rule source directory.
type SourceConfig struct {
	// Name identifies the source in merge conflict reports.
	Name string `yaml:"name"`
	// Path is the source root directory. A missing directory is an empty
	// source, not an error.
	Path string `yaml:"path"`
	// Scope is the hierarchy level (global, project, package).
	Scope Scope `yaml:"scope"`
	// Patterns are doublestar globs selecting rule files (default: YAML/JSON).
	Patterns []string `yaml:"patterns,omitempty"`
	// Ignore are doublestar globs excluded from loading.
	Ignore []string `yaml:"ignore,omitempty"`
}

// MergeConfig configures same-id collision handling during load.
type MergeConfig struct {
	// Strategy is one of local-wins, parent-wins, latest-wins.
	Strategy string `yaml:"strategy"`
}

// RemoteConfig configures the remote rule store.
type RemoteConfig struct {
	// BaseURL is the remote store endpoint (e.g. https://rules.example.com/api).
	BaseURL string `yaml:"base_url"`
	// Team is the remote team the local rule set syncs against.
	Team string `yaml:"team"`
	// Timeout bounds each network call.
	Timeout time.Duration `yaml:"timeout"`
	// TokenRefreshBuffer is how close to expiry a token is refreshed.
	TokenRefreshBuffer time.Duration `yaml:"token_refresh_buffer"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	// BatchSize is the number of rules per push batch.
	BatchSize int `yaml:"batch_size"`
	// Strategy is the default conflict resolution strategy
	// (local-wins, remote-wins, auto, manual, force).
	Strategy string `yaml:"strategy"`
	// QueuePath is the offline queue file. Empty disables offline queueing.
	QueuePath string `yaml:"queue_path"`
	// MaxRetries is the replay ceiling before a queue item is left with a
	// terminal error.
	MaxRetries int `yaml:"max_retries"`
	// ProbeInterval is the connectivity probe period. Zero disables probing.
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// AutoMergeFields are the only fields a conflict may touch and still be
	// auto-resolvable.
	AutoMergeFields []string `yaml:"auto_merge_fields,omitempty"`
	// PriorityFields are fields where the local value wins during auto-merge.
	PriorityFields []string `yaml:"priority_fields,omitempty"`
}

// EventsConfig configures optional NATS event publishing.
type EventsConfig struct {
	// NATSURL is the NATS server URL. Empty disables publishing.
	NATSURL string `yaml:"nats_url"`
	// SubjectPrefix prefixes event subjects (default: rulesync.event).
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Merge: MergeConfig{
			Strategy: "local-wins",
		},
		Remote: RemoteConfig{
			Timeout:            30 * time.Second,
			TokenRefreshBuffer: 5 * time.Minute,
		},
		Sync: SyncConfig{
			BatchSize:       50,
			Strategy:        "manual",
			QueuePath:       ".rulesync/queue.json",
			MaxRetries:      5,
			ProbeInterval:   30 * time.Second,
			AutoMergeFields: []string{"tags", "metadata.changelog"},
		},
		Events: EventsConfig{
			SubjectPrefix: "rulesync.event",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Merge.Strategy {
	case "local-wins", "parent-wins", "latest-wins":
	default:
		return fmt.Errorf("merge.strategy must be local-wins, parent-wins, or latest-wins, got %q", c.Merge.Strategy)
	}
	switch c.Sync.Strategy {
	case "local-wins", "remote-wins", "auto", "manual", "force":
	default:
		return fmt.Errorf("sync.strategy must be local-wins, remote-wins, auto, manual, or force, got %q", c.Sync.Strategy)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	for i, src := range c.Sources {
		if src.Path == "" {
			return fmt.Errorf("sources[%d]: path is required", i)
		}
		switch src.Scope {
		case ScopeGlobal, ScopeProject, ScopePackage:
		default:
			return fmt.Errorf("sources[%d]: scope must be global, project, or package, got %q", i, src.Scope)
		}
	}
	return nil
}

// Overlay applies non-zero fields from other onto this config
func (c *Config) Overlay(other *Config) {
	if other == nil {
		return
	}
	if len(other.Sources) > 0 {
		c.Sources = other.Sources
	}
	if other.Merge.Strategy != "" {
		c.Merge.Strategy = other.Merge.Strategy
	}
	if other.Remote.BaseURL != "" {
		c.Remote.BaseURL = other.Remote.BaseURL
	}
	if other.Remote.Team != "" {
		c.Remote.Team = other.Remote.Team
	}
	if other.Remote.Timeout != 0 {
		c.Remote.Timeout = other.Remote.Timeout
	}
	if other.Remote.TokenRefreshBuffer != 0 {
		c.Remote.TokenRefreshBuffer = other.Remote.TokenRefreshBuffer
	}
	if other.Sync.BatchSize != 0 {
		c.Sync.BatchSize = other.Sync.BatchSize
	}
	if other.Sync.Strategy != "" {
		c.Sync.Strategy = other.Sync.Strategy
	}
	if other.Sync.QueuePath != "" {
		c.Sync.QueuePath = other.Sync.QueuePath
	}
	if other.Sync.MaxRetries != 0 {
		c.Sync.MaxRetries = other.Sync.MaxRetries
	}
	if other.Sync.ProbeInterval != 0 {
		c.Sync.ProbeInterval = other.Sync.ProbeInterval
	}
	if len(other.Sync.AutoMergeFields) > 0 {
		c.Sync.AutoMergeFields = other.Sync.AutoMergeFields
	}
	if len(other.Sync.PriorityFields) > 0 {
		c.Sync.PriorityFields = other.Sync.PriorityFields
	}
	if other.Events.NATSURL != "" {
		c.Events.NATSURL = other.Events.NATSURL
	}
	if other.Events.SubjectPrefix != "" {
		c.Events.SubjectPrefix = other.Events.SubjectPrefix
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveToFile writes the configuration to a YAML file, creating parent
// directories as needed
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
