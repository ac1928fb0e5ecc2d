// Package main provides the rulesync binary entry point.
// Rulesync loads hierarchical rule sets, validates their dependency
// graphs, and synchronizes them with a remote team store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c360studio/rulesync/config"
	"github.com/c360studio/rulesync/depgraph"
	"github.com/c360studio/rulesync/loader"
	"github.com/c360studio/rulesync/remote"
	"github.com/c360studio/rulesync/resolver"
	"github.com/c360studio/rulesync/rule"
	"github.com/c360studio/rulesync/syncer"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rulesync"
)

// baseSnapshotFile holds the rule set as of the last successful sync, used
// as the common ancestor for three-way conflict analysis.
const baseSnapshotFile = ".rulesync/base.json"

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "rulesync",
		Short: "Rule set synchronization and conflict resolution",
		Long: `Rulesync manages coding-rule documents across a source hierarchy
(global, project, package), validates their dependency graphs, and keeps
them synchronized with a remote team store.

Conflicts between local and remote edits are diffed field by field and
resolved by strategy: local-wins, remote-wins, auto (three-way merge),
manual, or force.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(syncCmd())
	cmd.AddCommand(watchCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(listCmd())
	cmd.AddCommand(queueCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(slog.Default()).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadRules(cfg *config.Config) (*loader.Loader, *loader.Result, error) {
	l := loader.New(
		loader.SourcesFromConfig(cfg.Sources),
		loader.MergeStrategy(cfg.Merge.Strategy),
		slog.Default(),
	)
	result, err := l.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	for _, loadErr := range result.Errors {
		slog.Warn("Skipped unreadable rule document",
			"path", loadErr.Path, "error", loadErr.Err.Error())
	}
	return l, result, nil
}

func syncCmd() *cobra.Command {
	var (
		direction string
		strategy  string
		full      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local rules with the remote team store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Remote.BaseURL == "" || cfg.Remote.Team == "" {
				return fmt.Errorf("remote.base_url and remote.team must be configured")
			}
			if strategy == "" {
				strategy = cfg.Sync.Strategy
			}

			ld, result, err := loadRules(cfg)
			if err != nil {
				return err
			}

			orch, queue, err := buildOrchestrator(cfg, ld)
			if err != nil {
				return err
			}

			opts := syncer.SyncOptions{
				Direction: syncer.Direction(direction),
				Strategy:  resolver.Strategy(strategy),
				Rules:     result.Rules,
				Base:      loadBaseSnapshot(),
			}
			if full {
				opts.Since = &time.Time{}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			syncResult, err := orch.Sync(ctx, opts)
			if err != nil {
				return err
			}

			printSyncResult(syncResult, queue)
			if syncResult.Success {
				if err := saveBaseSnapshot(result.Rules); err != nil {
					slog.Warn("Failed to record sync snapshot", "error", err.Error())
				}
				return nil
			}
			if len(syncResult.Conflicts) > 0 {
				return &syncer.ConflictError{Conflicts: syncResult.Conflicts}
			}
			if len(syncResult.Errors) > 0 {
				return fmt.Errorf("sync finished with %d errors", len(syncResult.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "both", "Sync direction (push, pull, both)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Conflict strategy (local-wins, remote-wins, auto, manual, force)")
	cmd.Flags().BoolVar(&full, "full", false, "Pull the full remote rule set instead of a delta")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch rule sources and remote connectivity until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ld, _, err := loadRules(cfg)
			if err != nil {
				return err
			}
			orch, queue, err := buildOrchestrator(cfg, ld)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var roots []string
			for _, src := range cfg.Sources {
				roots = append(roots, src.Path)
			}
			watcher, err := syncer.NewWatcher(roots, 0, nil, orch.Events(), slog.Default())
			if err != nil {
				return fmt.Errorf("create source watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Start(ctx); err != nil {
				return err
			}

			orch.Events().Subscribe(func(ev syncer.Event) {
				fmt.Printf("[%s] %s %s %s\n",
					ev.Time.Format("15:04:05"), ev.Type, ev.RuleID, ev.Message)
			})

			orch.Start(ctx)
			defer orch.Stop()

			slog.Info("Watching rule sources", "roots", len(roots), "queue_depth", queueDepth(queue))
			<-ctx.Done()
			return nil
		},
	}
}

func queueDepth(queue *syncer.OfflineQueue) int {
	if queue == nil {
		return 0
	}
	return queue.Len()
}

// buildOrchestrator wires the remote client, offline queue, event hub, and
// resolver from configuration. The returned queue may be nil when offline
// queueing is disabled.
func buildOrchestrator(cfg *config.Config, ld *loader.Loader) (*syncer.Orchestrator, *syncer.OfflineQueue, error) {
	logger := slog.Default()

	client := remote.NewClient(
		cfg.Remote.BaseURL,
		cfg.Remote.Team,
		tokenProvider(cfg),
		cfg.Remote.Timeout,
		logger,
	)

	var queue *syncer.OfflineQueue
	if cfg.Sync.QueuePath != "" {
		var err error
		queue, err = syncer.OpenQueue(cfg.Sync.QueuePath, cfg.Sync.MaxRetries, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open offline queue: %w", err)
		}
	}

	var nc *nats.Conn
	if cfg.Events.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.Events.NATSURL)
		if err != nil {
			// Event publishing is optional; a dead broker never blocks a sync.
			logger.Warn("NATS unavailable, sync events stay local", "error", err.Error())
		}
	}

	res := resolver.New(resolver.Options{
		AutoMergeFields: cfg.Sync.AutoMergeFields,
		PriorityFields:  cfg.Sync.PriorityFields,
		Logger:          logger,
	})

	applyLocal := func(r *rule.Rule) error {
		root := localSaveRoot(cfg)
		if root == "" {
			return fmt.Errorf("no local source configured to save rule %s", r.ID)
		}
		_, err := ld.Save(root, r, nil)
		return err
	}

	orch := syncer.New(syncer.Options{
		Store:         client,
		Resolver:      res,
		Queue:         queue,
		Events:        syncer.NewEvents(nc, cfg.Events.SubjectPrefix, logger),
		Metrics:       syncer.NewMetrics(prometheus.DefaultRegisterer),
		Logger:        logger,
		ApplyLocal:    applyLocal,
		BatchSize:     cfg.Sync.BatchSize,
		ProbeInterval: cfg.Sync.ProbeInterval,
	})
	return orch, queue, nil
}

// credentialsFile is maintained by an external login flow: a JSON document
// holding the current access token and its expiry.
const credentialsFile = ".rulesync/credentials.json"

// tokenProvider selects the auth source for remote calls. RULESYNC_TOKEN
// takes precedence as a fixed personal access token; otherwise tokens come
// from the credentials file, re-read whenever the cached token is within
// the configured refresh buffer of expiry.
func tokenProvider(cfg *config.Config) remote.TokenProvider {
	if token := os.Getenv("RULESYNC_TOKEN"); token != "" {
		return remote.StaticTokenProvider(token)
	}
	return remote.NewRefreshingTokenProvider(readCredentials, cfg.Remote.TokenRefreshBuffer, nil)
}

// readCredentials loads the token from the credentials file. A missing file
// yields an empty token, which the client reports as unauthorized.
func readCredentials(ctx context.Context) (string, time.Time, error) {
	data, err := os.ReadFile(credentialsFile)
	if os.IsNotExist(err) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	var creds struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", time.Time{}, fmt.Errorf("parse credentials %s: %w", credentialsFile, err)
	}
	return creds.Token, creds.ExpiresAt, nil
}

// localSaveRoot picks where adopted remote rules land: the narrowest
// configured scope wins.
func localSaveRoot(cfg *config.Config) string {
	var byScope [3]string
	for _, src := range cfg.Sources {
		switch src.Scope {
		case config.ScopePackage:
			byScope[0] = src.Path
		case config.ScopeProject:
			byScope[1] = src.Path
		case config.ScopeGlobal:
			byScope[2] = src.Path
		}
	}
	for _, root := range byScope {
		if root != "" {
			return root
		}
	}
	return ""
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate rule dependency graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, result, err := loadRules(cfg)
			if err != nil {
				return err
			}

			graph := depgraph.Build(result.Rules)
			report := graph.ValidateAll()

			if len(result.Conflicts) > 0 {
				fmt.Printf("Merge conflicts (%d):\n", len(result.Conflicts))
				for _, c := range result.Conflicts {
					fmt.Printf("  %s: %s wins (%s)\n", c.RuleID, c.Winner, c.Resolution)
				}
			}
			for _, pair := range graph.ConflictPairs() {
				marker := ""
				if pair.Mutual {
					marker = " (mutual)"
				}
				fmt.Printf("Declared conflict: %s <-> %s%s\n", pair.A, pair.B, marker)
			}

			if report.OK() {
				fmt.Printf("%d rules validated, no dependency errors\n", len(result.Rules))
				return nil
			}
			for _, cycle := range report.Cycles {
				fmt.Printf("Cycle: %s\n", strings.Join(cycle, " -> "))
			}
			for _, depErr := range report.Errors {
				fmt.Printf("%s: %s\n", depErr.Kind, depErr.Message)
				if depErr.Suggestion != "" {
					fmt.Printf("  suggestion: %s\n", depErr.Suggestion)
				}
			}
			return fmt.Errorf("%d dependency errors", len(report.Errors))
		},
	}
}

func listCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the merged rule set in application order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, result, err := loadRules(cfg)
			if err != nil {
				return err
			}

			graph := depgraph.Build(result.Rules)
			ordered := graph.ApplicationOrder()

			var rules []*rule.Rule
			for _, id := range ordered {
				r := result.Rules[id]
				if category != "" && r.Category != category {
					continue
				}
				rules = append(rules, r)
			}

			if asJSON {
				data, err := json.MarshalIndent(rules, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tSEVERITY\tVERSION\tNAME")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Category, r.Severity, r.Metadata.Version, r.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list rules in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON instead of a table")
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline sync queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _, err := openQueueFromConfig()
			if err != nil {
				return err
			}
			items := queue.Items()
			if len(items) == 0 {
				fmt.Println("Offline queue is empty")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tRULE\tENQUEUED\tRETRIES\tLAST ERROR")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					item.Operation, item.RuleID,
					item.EnqueuedAt.Format("2006-01-02 15:04:05"),
					item.RetryCount, item.LastError)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Replay queued operations against the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, cfg, err := openQueueFromConfig()
			if err != nil {
				return err
			}
			ld, _, err := loadRules(cfg)
			if err != nil {
				return err
			}
			orch, _, err := buildOrchestratorWithQueue(cfg, ld, queue)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			replayed, err := orch.ProcessQueue(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Replayed %d operations, %d remaining\n", replayed, queue.Len())
			return nil
		},
	})

	return cmd
}

func openQueueFromConfig() (*syncer.OfflineQueue, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Sync.QueuePath == "" {
		return nil, nil, fmt.Errorf("offline queueing is disabled (sync.queue_path is empty)")
	}
	queue, err := syncer.OpenQueue(cfg.Sync.QueuePath, cfg.Sync.MaxRetries, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("open offline queue: %w", err)
	}
	return queue, cfg, nil
}

func buildOrchestratorWithQueue(cfg *config.Config, ld *loader.Loader, queue *syncer.OfflineQueue) (*syncer.Orchestrator, *syncer.OfflineQueue, error) {
	if cfg.Remote.BaseURL == "" || cfg.Remote.Team == "" {
		return nil, nil, fmt.Errorf("remote.base_url and remote.team must be configured")
	}
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Team, tokenProvider(cfg), cfg.Remote.Timeout, slog.Default())
	orch := syncer.New(syncer.Options{
		Store:     client,
		Queue:     queue,
		Logger:    slog.Default(),
		BatchSize: cfg.Sync.BatchSize,
	})
	return orch, queue, nil
}

func printSyncResult(result *syncer.SyncResult, queue *syncer.OfflineQueue) {
	fmt.Printf("Pushed %d, pulled %d", result.Pushed, result.Pulled)
	if result.Queued > 0 {
		fmt.Printf(", queued %d for later delivery", result.Queued)
	}
	fmt.Printf(" (%.2fs)\n", result.Duration.Seconds())

	if len(result.Conflicts) > 0 {
		fmt.Printf("\nUnresolved conflicts (%d):\n", len(result.Conflicts))
		for _, c := range result.Conflicts {
			fmt.Printf("  %s [%s]\n", c.RuleID, c.Type)
			for _, d := range c.Diff {
				fmt.Printf("    %s: %s\n", d.Field, d.Type)
			}
		}
	}
	for _, msg := range result.Errors {
		fmt.Printf("Error: %s\n", msg)
	}
	if queue != nil && queue.Len() > 0 {
		fmt.Printf("Offline queue depth: %d (run 'rulesync queue retry' when online)\n", queue.Len())
	}
}

// loadBaseSnapshot reads the rule set recorded at the last successful sync.
// A missing or unreadable snapshot means no three-way base is available.
func loadBaseSnapshot() rule.Set {
	data, err := os.ReadFile(baseSnapshotFile)
	if err != nil {
		return nil
	}
	var rules []*rule.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		slog.Warn("Ignoring corrupt sync snapshot", "path", baseSnapshotFile, "error", err.Error())
		return nil
	}
	return rule.NewSet(rules)
}

func saveBaseSnapshot(rules rule.Set) error {
	list := rules.List()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(baseSnapshotFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(baseSnapshotFile, data, 0644)
}
