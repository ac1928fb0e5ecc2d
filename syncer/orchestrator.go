// Package syncer coordinates rule synchronization between the local rule
// set and a remote team store: batched pushes, delta pulls, conflict
// resolution, and a durable offline queue for operations attempted without
// connectivity.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/rulesync/remote"
	"github.com/c360studio/rulesync/resolver"
	"github.com/c360studio/rulesync/rule"
)

// RemoteStore is the remote side of a sync. *remote.Client satisfies it;
// tests substitute fakes.
type RemoteStore interface {
	List(ctx context.Context, since *time.Time) ([]*rule.Rule, error)
	BatchUpsert(ctx context.Context, rules []*rule.Rule) ([]remote.BatchResult, error)
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// Direction selects which halves of a sync run.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// SyncOptions parameterize one sync attempt.
type SyncOptions struct {
	// Direction defaults to both.
	Direction Direction

	// Strategy resolves detected conflicts. Manual leaves them for the
	// caller; force discards them all.
	Strategy resolver.Strategy

	// Rules is the local rule set to sync.
	Rules rule.Set

	// Base is the snapshot from the last successful sync, used as the
	// common ancestor for three-way conflict analysis. May be nil.
	Base rule.Set

	// Since overrides the delta-pull watermark. Nil uses the last
	// successful sync time; a zero watermark pulls everything.
	Since *time.Time

	// Progress receives per-phase progress updates. Optional.
	Progress ProgressFunc
}

// SyncResult summarizes one sync attempt. Success means every pushed rule
// was accepted, the pull applied cleanly, and no conflict is left
// unresolved.
type SyncResult struct {
	Success   bool                 `json:"success"`
	Pushed    int                  `json:"pushed"`
	Pulled    int                  `json:"pulled"`
	Queued    int                  `json:"queued"`
	Conflicts []*resolver.Conflict `json:"conflicts,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
	Duration  time.Duration        `json:"duration"`
}

// Options configure an Orchestrator. Store and Resolver are required;
// everything else degrades gracefully when absent.
type Options struct {
	Store    RemoteStore
	Resolver *resolver.Resolver

	// Queue holds operations attempted while offline. Nil disables
	// offline queueing; offline syncs then fail with OfflineError.
	Queue *OfflineQueue

	Events  *Events
	Metrics *Metrics
	Logger  *slog.Logger

	// ApplyLocal persists a rule adopted from the remote side. Nil means
	// pulled rules are only counted, not written anywhere.
	ApplyLocal func(*rule.Rule) error

	// BatchSize caps rules per push request. Defaults to 50.
	BatchSize int

	// ProbeInterval is the connectivity probe period. Defaults to 30s.
	ProbeInterval time.Duration

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator runs syncs. One sync at a time: a second call while one is
// in flight is rejected with ErrSyncInProgress, never queued.
type Orchestrator struct {
	store         RemoteStore
	resolver      *resolver.Resolver
	queue         *OfflineQueue
	events        *Events
	metrics       *Metrics
	logger        *slog.Logger
	applyLocal    func(*rule.Rule) error
	batchSize     int
	probeInterval time.Duration
	clock         func() time.Time

	state *State

	probeCancel context.CancelFunc
}

// New creates an orchestrator from options, filling in defaults.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New(resolver.Options{Logger: opts.Logger})
	}
	if opts.Events == nil {
		opts.Events = NewEvents(nil, "", opts.Logger)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		store:         opts.Store,
		resolver:      opts.Resolver,
		queue:         opts.Queue,
		events:        opts.Events,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		applyLocal:    opts.ApplyLocal,
		batchSize:     opts.BatchSize,
		probeInterval: opts.ProbeInterval,
		clock:         opts.Clock,
		state:         &State{},
	}
}

// State returns a snapshot of the sync state for status display.
func (o *Orchestrator) State() Snapshot {
	return o.state.Snapshot()
}

// Events returns the orchestrator's event hub for subscriptions.
func (o *Orchestrator) Events() *Events {
	return o.events
}

// Sync runs one synchronization attempt. Exactly one sync runs at a time.
func (o *Orchestrator) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if o.store == nil {
		return nil, ErrNoRemote
	}
	if err := o.state.beginSync(); err != nil {
		return nil, err
	}
	defer o.state.endSync()

	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	if opts.Strategy == "" {
		opts.Strategy = resolver.StrategyManual
	}

	started := o.clock()
	o.events.Emit(Event{Type: EventStart, Message: string(opts.Direction)})
	o.logger.Info("Sync started",
		slog.String("direction", string(opts.Direction)),
		slog.String("strategy", string(opts.Strategy)),
		slog.Int("rules", len(opts.Rules)))

	result := &SyncResult{}

	if o.state.isOffline() {
		if err := o.queueWhileOffline(opts, result); err != nil {
			return nil, err
		}
		result.Duration = o.clock().Sub(started)
		o.observe(result)
		return result, nil
	}

	if opts.Direction == DirectionPush || opts.Direction == DirectionBoth {
		o.push(ctx, opts, result)
	}
	if opts.Direction == DirectionPull || opts.Direction == DirectionBoth {
		o.pull(ctx, opts, result)
	}

	o.resolveConflicts(opts, result)

	result.Success = len(result.Conflicts) == 0 && len(result.Errors) == 0 && result.Queued == 0
	result.Duration = o.clock().Sub(started)
	o.observe(result)

	if result.Success {
		o.state.markSynced(o.clock())
		o.events.Emit(Event{Type: EventComplete,
			Message: fmt.Sprintf("pushed %d, pulled %d", result.Pushed, result.Pulled)})
	} else if len(result.Errors) > 0 {
		o.events.Emit(Event{Type: EventError, Message: result.Errors[0]})
	}
	o.logger.Info("Sync finished",
		slog.Bool("success", result.Success),
		slog.Int("pushed", result.Pushed),
		slog.Int("pulled", result.Pulled),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("queued", result.Queued))
	return result, nil
}

// queueWhileOffline turns the push half of an offline sync into queued
// operations. Pull halves cannot be queued; they simply wait.
func (o *Orchestrator) queueWhileOffline(opts SyncOptions, result *SyncResult) error {
	if opts.Direction == DirectionPull {
		return &OfflineError{Op: "pull"}
	}
	if o.queue == nil {
		return &OfflineError{Op: "push"}
	}
	for _, r := range sortedRules(opts.Rules) {
		if _, err := o.queue.Enqueue(OpPush, r, r.ID, nil); err != nil {
			return err
		}
		result.Queued++
		o.events.Emit(Event{Type: EventOfflineQueued, RuleID: r.ID})
	}
	o.logger.Info("Offline, queued push operations", slog.Int("count", result.Queued))
	if o.metrics != nil {
		o.metrics.QueueDepth.Set(float64(o.queue.Len()))
	}
	return nil
}

// push sends local rules to the remote store in batches. A failed batch is
// retried item by item so one bad rule never sinks its batchmates; a
// network failure flips the orchestrator offline and queues the remainder.
func (o *Orchestrator) push(ctx context.Context, opts SyncOptions, result *SyncResult) {
	rules := sortedRules(opts.Rules)
	total := len(rules)

	for start := 0; start < total; start += o.batchSize {
		end := start + o.batchSize
		if end > total {
			end = total
		}
		batch := rules[start:end]
		o.progress(opts, Progress{Phase: "push", Current: start, Total: total})

		results, err := o.store.BatchUpsert(ctx, batch)
		if remote.IsNetworkError(err) {
			o.wentOffline(err)
			o.queueRemainder(rules[start:], result)
			return
		}
		if err != nil {
			// Retry the batch one rule at a time.
			results = o.pushIndividually(ctx, batch, result)
			if results == nil {
				// Went offline mid-batch; the batch remainder is already
				// queued, so queue only the batches after it.
				o.queueRemainder(rules[end:], result)
				return
			}
		}
		o.applyBatchResults(opts, results, result)
	}
	o.progress(opts, Progress{Phase: "push", Current: total, Total: total})
}

// pushIndividually retries a failed batch rule by rule. A network error
// mid-way returns nil so the caller queues the rest.
func (o *Orchestrator) pushIndividually(ctx context.Context, batch []*rule.Rule, result *SyncResult) []remote.BatchResult {
	var results []remote.BatchResult
	for i, r := range batch {
		itemResults, err := o.store.BatchUpsert(ctx, batch[i:i+1])
		if remote.IsNetworkError(err) {
			o.wentOffline(err)
			o.queueRemainder(batch[i:], result)
			return nil
		}
		if err != nil {
			results = append(results, remote.BatchResult{
				RuleID: r.ID, Status: remote.BatchError, Message: err.Error(),
			})
			continue
		}
		results = append(results, itemResults...)
	}
	return results
}

// applyBatchResults folds the server's per-item reports into the sync
// result. Conflict reports carry the server's copy of the rule, which is
// diffed against ours.
func (o *Orchestrator) applyBatchResults(opts SyncOptions, results []remote.BatchResult, out *SyncResult) {
	for _, res := range results {
		switch res.Status {
		case remote.BatchOK:
			out.Pushed++
		case remote.BatchConflict:
			local := opts.Rules[res.RuleID]
			c := o.resolver.Detect(local, res.Remote, o.baseRule(opts, res.RuleID))
			if c == nil {
				// Diverged metadata but identical content; nothing to do.
				out.Pushed++
				continue
			}
			out.Conflicts = append(out.Conflicts, c)
		case remote.BatchError:
			out.Errors = append(out.Errors, fmt.Sprintf("push %s: %s", res.RuleID, res.Message))
		}
	}
}

// pull fetches remote changes since the last successful sync and merges
// them into the local set. Remote rules absent locally are adopted unless
// the base snapshot shows they were deleted here, which is a conflict.
func (o *Orchestrator) pull(ctx context.Context, opts SyncOptions, result *SyncResult) {
	since := opts.Since
	if since == nil {
		if last := o.state.lastSync(); !last.IsZero() {
			since = &last
		}
	}

	remoteRules, err := o.store.List(ctx, since)
	if remote.IsNetworkError(err) {
		o.wentOffline(err)
		result.Errors = append(result.Errors, fmt.Sprintf("pull: %v", err))
		return
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("pull: %v", err))
		return
	}

	total := len(remoteRules)
	for i, remoteRule := range remoteRules {
		o.progress(opts, Progress{Phase: "pull", Current: i, Total: total, RuleID: remoteRule.ID})

		localRule, present := opts.Rules[remoteRule.ID]
		if !present {
			if opts.Base != nil && opts.Base[remoteRule.ID] != nil {
				result.Conflicts = append(result.Conflicts, &resolver.Conflict{
					RuleID: remoteRule.ID,
					Remote: remoteRule,
					Base:   opts.Base[remoteRule.ID],
					Type:   resolver.ConflictDeletedLocally,
				})
				continue
			}
			if err := o.adopt(remoteRule); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("pull %s: %v", remoteRule.ID, err))
				continue
			}
			result.Pulled++
			continue
		}

		c := o.resolver.Detect(localRule, remoteRule, o.baseRule(opts, remoteRule.ID))
		if c == nil {
			continue
		}
		result.Conflicts = append(result.Conflicts, c)
	}
	o.progress(opts, Progress{Phase: "pull", Current: total, Total: total})
}

// resolveConflicts applies the sync strategy to every collected conflict.
// Force drops them all; manual leaves them for the caller; the rest run
// through the resolver and apply their resolutions locally. Conflicts the
// strategy cannot settle stay in the result.
func (o *Orchestrator) resolveConflicts(opts SyncOptions, result *SyncResult) {
	if len(result.Conflicts) == 0 {
		return
	}
	if o.metrics != nil {
		o.metrics.ConflictsDetected.Add(float64(len(result.Conflicts)))
	}

	if opts.Strategy == resolver.StrategyForce {
		o.logger.Warn("Force strategy, discarding conflicts", slog.Int("count", len(result.Conflicts)))
		result.Conflicts = nil
		return
	}

	var remaining []*resolver.Conflict
	for i, c := range result.Conflicts {
		o.progress(opts, Progress{Phase: "resolve", Current: i, Total: len(result.Conflicts), RuleID: c.RuleID})

		// Keeping the local deletion needs no local write.
		if c.Type == resolver.ConflictDeletedLocally && opts.Strategy == resolver.StrategyLocalWins {
			continue
		}

		var resolved *rule.Rule
		if opts.Strategy != resolver.StrategyManual {
			resolved = o.resolver.Resolve(c, opts.Strategy)
		} else if c.Resolution != nil {
			// Pre-resolved, e.g. deleted_locally defaulting to remote.
			resolved = c.Resolution
		}
		if resolved == nil {
			o.events.Emit(Event{Type: EventConflict, RuleID: c.RuleID, Message: string(c.Type)})
			remaining = append(remaining, c)
			continue
		}
		if err := o.adopt(resolved); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("resolve %s: %v", c.RuleID, err))
			remaining = append(remaining, c)
		}
	}
	result.Conflicts = remaining
}

// ProcessQueue replays the offline queue against the remote store in FIFO
// order. Called automatically when connectivity returns and available to
// the CLI for manual retries.
func (o *Orchestrator) ProcessQueue(ctx context.Context) (int, error) {
	if o.queue == nil {
		return 0, nil
	}
	if o.store == nil {
		return 0, ErrNoRemote
	}

	replayed, err := o.queue.Replay(ctx, func(ctx context.Context, item QueueItem) error {
		switch item.Operation {
		case OpPush, OpPull:
			if item.Rule == nil {
				return nil
			}
			results, upsertErr := o.store.BatchUpsert(ctx, []*rule.Rule{item.Rule})
			if upsertErr != nil {
				return upsertErr
			}
			for _, res := range results {
				if res.Status == remote.BatchError {
					return fmt.Errorf("replay %s: %s", res.RuleID, res.Message)
				}
			}
			if o.metrics != nil {
				o.metrics.RulesPushed.Inc()
			}
			return nil
		case OpDelete:
			return o.store.Delete(ctx, item.RuleID)
		default:
			return fmt.Errorf("unknown queued operation %q", item.Operation)
		}
	})
	if o.metrics != nil {
		o.metrics.QueueDepth.Set(float64(o.queue.Len()))
	}
	if replayed > 0 {
		o.logger.Info("Offline queue replayed", slog.Int("replayed", replayed), slog.Int("remaining", o.queue.Len()))
	}
	return replayed, err
}

// Start launches the background connectivity probe. When the probe sees
// the remote come back after an offline stretch, it drains the offline
// queue. Stop ends the probe.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.store == nil || o.probeCancel != nil {
		return
	}
	probeCtx, cancel := context.WithCancel(ctx)
	o.probeCancel = cancel

	go func() {
		ticker := time.NewTicker(o.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				o.probe(probeCtx)
			}
		}
	}()
}

// Stop ends the connectivity probe started by Start.
func (o *Orchestrator) Stop() {
	if o.probeCancel != nil {
		o.probeCancel()
		o.probeCancel = nil
	}
}

// probe checks remote health once and handles offline/online transitions.
func (o *Orchestrator) probe(ctx context.Context) {
	err := o.store.Health(ctx)
	if err != nil {
		if o.state.setOffline(true) {
			o.logger.Warn("Remote store unreachable, entering offline mode", slog.String("error", err.Error()))
			o.events.Emit(Event{Type: EventOffline, Message: err.Error()})
		}
		return
	}
	if o.state.setOffline(false) {
		o.logger.Info("Remote store reachable again")
		o.events.Emit(Event{Type: EventOnline})
		if _, replayErr := o.ProcessQueue(ctx); replayErr != nil {
			o.logger.Warn("Queue replay after reconnect failed", slog.String("error", replayErr.Error()))
		}
	}
}

// wentOffline records a mid-sync connectivity loss.
func (o *Orchestrator) wentOffline(cause error) {
	if o.state.setOffline(true) {
		o.logger.Warn("Connectivity lost during sync", slog.String("error", cause.Error()))
		o.events.Emit(Event{Type: EventOffline, Message: cause.Error()})
	}
}

// queueRemainder enqueues rules that could not be pushed before the
// connection dropped.
func (o *Orchestrator) queueRemainder(rules []*rule.Rule, result *SyncResult) {
	if o.queue == nil {
		result.Errors = append(result.Errors, "connection lost and offline queue disabled")
		return
	}
	for _, r := range rules {
		if _, err := o.queue.Enqueue(OpPush, r, r.ID, nil); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("queue %s: %v", r.ID, err))
			continue
		}
		result.Queued++
		o.events.Emit(Event{Type: EventOfflineQueued, RuleID: r.ID})
	}
	if o.metrics != nil {
		o.metrics.QueueDepth.Set(float64(o.queue.Len()))
	}
}

// adopt writes a remote or resolved rule into local storage.
func (o *Orchestrator) adopt(r *rule.Rule) error {
	if o.applyLocal == nil {
		return nil
	}
	return o.applyLocal(r)
}

func (o *Orchestrator) baseRule(opts SyncOptions, id string) *rule.Rule {
	if opts.Base == nil {
		return nil
	}
	return opts.Base[id]
}

func (o *Orchestrator) progress(opts SyncOptions, p Progress) {
	if opts.Progress != nil {
		opts.Progress(p)
	}
}

func (o *Orchestrator) observe(result *SyncResult) {
	if o.metrics == nil {
		return
	}
	o.metrics.SyncDuration.Observe(result.Duration.Seconds())
	o.metrics.RulesPushed.Add(float64(result.Pushed))
	o.metrics.RulesPulled.Add(float64(result.Pulled))
}

// sortedRules returns the set's rules in deterministic id order.
func sortedRules(set rule.Set) []*rule.Rule {
	rules := make([]*rule.Rule, 0, len(set))
	for _, r := range set {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}
