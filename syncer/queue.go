package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/c360studio/rulesync/rule"
)

// Operation is the kind of queued sync operation.
type Operation string

const (
	OpPush   Operation = "push"
	OpPull   Operation = "pull"
	OpDelete Operation = "delete"
)

// QueueItem is one not-yet-delivered sync operation. Items past the retry
// ceiling stay in the queue flagged with their last error; they are never
// silently dropped.
type QueueItem struct {
	ID         string     `json:"id"`
	Operation  Operation  `json:"operation_type"`
	RuleID     string     `json:"rule_id"`
	Rule       *rule.Rule `json:"rule_snapshot,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	RetryCount int        `json:"retry_count"`
	LastError  string     `json:"last_error,omitempty"`
}

// OfflineQueue is the durable, ordered list of unsent sync operations. It
// is backed by a single JSON document: the whole queue is read into memory
// on open and rewritten wholesale on every mutation. Concurrent processes
// sharing the file are out of scope (single-writer assumption).
type OfflineQueue struct {
	path       string
	maxRetries int
	logger     *slog.Logger

	mu    sync.Mutex
	items []QueueItem
}

// OpenQueue loads the queue file at path, creating an empty queue when the
// file does not exist yet.
func OpenQueue(path string, maxRetries int, logger *slog.Logger) (*OfflineQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	q := &OfflineQueue{path: path, maxRetries: maxRetries, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read offline queue: %w", err)
	}
	if err := json.Unmarshal(data, &q.items); err != nil {
		return nil, fmt.Errorf("parse offline queue %s: %w", path, err)
	}
	return q, nil
}

// Enqueue appends an operation and persists the queue.
func (q *OfflineQueue) Enqueue(op Operation, r *rule.Rule, ruleID string, cause error) (QueueItem, error) {
	item := QueueItem{
		ID:         uuid.New().String(),
		Operation:  op,
		RuleID:     ruleID,
		Rule:       r,
		EnqueuedAt: time.Now(),
	}
	if cause != nil {
		item.LastError = cause.Error()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	if err := q.persistLocked(); err != nil {
		return item, err
	}

	q.logger.Debug("Queued offline operation",
		slog.String("op", string(op)),
		slog.String("rule", ruleID),
		slog.Int("depth", len(q.items)))
	return item, nil
}

// Items returns a copy of the queue contents in FIFO order.
func (q *OfflineQueue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueItem(nil), q.items...)
}

// Len returns the number of queued items.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Replay processes items in FIFO order through apply. Each successful item
// is removed. A failed item gets its retry counter incremented and stays
// queued while under the retry ceiling; beyond it the item is left in place
// with its terminal error for manual inspection. Each attempt is retried
// with a short exponential backoff before counting as failed.
func (q *OfflineQueue) Replay(ctx context.Context, apply func(context.Context, QueueItem) error) (replayed int, err error) {
	q.mu.Lock()
	pending := append([]QueueItem(nil), q.items...)
	q.mu.Unlock()

	var remaining []QueueItem
	for _, item := range pending {
		if item.RetryCount >= q.maxRetries {
			remaining = append(remaining, item) // terminal, kept for inspection
			continue
		}
		if err := ctx.Err(); err != nil {
			remaining = append(remaining, item)
			continue
		}

		attempt := func() error { return apply(ctx, item) }
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
		if applyErr := backoff.Retry(attempt, policy); applyErr != nil {
			item.RetryCount++
			item.LastError = applyErr.Error()
			remaining = append(remaining, item)
			q.logger.Warn("Offline queue replay failed",
				slog.String("rule", item.RuleID),
				slog.Int("retries", item.RetryCount),
				slog.String("error", applyErr.Error()))
			continue
		}
		replayed++
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	// Items enqueued while the replay ran sit past the snapshot and must
	// survive; a replayed queue never loses writes.
	q.items = append(remaining, q.items[len(pending):]...)
	return replayed, q.persistLocked()
}

// persistLocked rewrites the queue file. Callers hold q.mu.
func (q *OfflineQueue) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	data, err := json.MarshalIndent(q.items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal offline queue: %w", err)
	}
	if err := os.WriteFile(q.path, data, 0644); err != nil {
		return fmt.Errorf("write offline queue: %w", err)
	}
	return nil
}
