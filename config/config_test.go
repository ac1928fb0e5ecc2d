package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Merge.Strategy != "local-wins" {
		t.Errorf("expected default merge strategy local-wins, got %s", cfg.Merge.Strategy)
	}
	if cfg.Sync.BatchSize != 50 {
		t.Errorf("expected default batch size 50, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Strategy != "manual" {
		t.Errorf("expected default sync strategy manual, got %s", cfg.Sync.Strategy)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("expected default remote timeout 30s, got %s", cfg.Remote.Timeout)
	}
	if len(cfg.Sync.AutoMergeFields) != 2 {
		t.Errorf("expected two default auto-merge fields, got %v", cfg.Sync.AutoMergeFields)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown merge strategy",
			modify:  func(c *Config) { c.Merge.Strategy = "newest" },
			wantErr: true,
		},
		{
			name:    "unknown sync strategy",
			modify:  func(c *Config) { c.Sync.Strategy = "yolo" },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			modify:  func(c *Config) { c.Sync.BatchSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative max retries",
			modify:  func(c *Config) { c.Sync.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "source without path",
			modify:  func(c *Config) { c.Sources = []SourceConfig{{Name: "global", Scope: ScopeGlobal}} },
			wantErr: true,
		},
		{
			name:    "source with bad scope",
			modify:  func(c *Config) { c.Sources = []SourceConfig{{Path: "/tmp/rules", Scope: "workspace"}} },
			wantErr: true,
		},
		{
			name: "valid sources",
			modify: func(c *Config) {
				c.Sources = []SourceConfig{
					{Name: "global", Path: "/etc/rules", Scope: ScopeGlobal},
					{Name: "project", Path: ".rules", Scope: ScopeProject},
				}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigOverlay(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		Merge:  MergeConfig{Strategy: "latest-wins"},
		Remote: RemoteConfig{BaseURL: "https://rules.example.com/api", Team: "platform"},
		Sync:   SyncConfig{BatchSize: 10},
	}

	base.Overlay(overlay)

	if base.Merge.Strategy != "latest-wins" {
		t.Errorf("expected merged strategy latest-wins, got %s", base.Merge.Strategy)
	}
	if base.Remote.BaseURL != "https://rules.example.com/api" {
		t.Errorf("unexpected base URL %s", base.Remote.BaseURL)
	}
	if base.Sync.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", base.Sync.BatchSize)
	}
	// Untouched fields keep defaults.
	if base.Sync.Strategy != "manual" {
		t.Errorf("expected sync strategy to stay manual, got %s", base.Sync.Strategy)
	}
	if base.Remote.Timeout != 30*time.Second {
		t.Errorf("expected timeout to stay 30s, got %s", base.Remote.Timeout)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "rulesync.yaml")

	cfg := DefaultConfig()
	cfg.Remote.BaseURL = "https://rules.example.com/api"
	cfg.Sources = []SourceConfig{{Name: "project", Path: ".rules", Scope: ScopeProject}}

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Remote.BaseURL != cfg.Remote.BaseURL {
		t.Errorf("round-trip base URL mismatch: %s", loaded.Remote.BaseURL)
	}
	if len(loaded.Sources) != 1 || loaded.Sources[0].Scope != ScopeProject {
		t.Errorf("round-trip sources mismatch: %+v", loaded.Sources)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
