package syncer

import (
	"errors"
	"fmt"

	"github.com/c360studio/rulesync/resolver"
)

// Orchestration-level errors abort the whole sync attempt immediately.
var (
	// ErrSyncInProgress is returned when a sync is already running. The
	// second attempt is rejected, never queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoRemote is returned when no remote store is configured.
	ErrNoRemote = errors.New("no remote store configured")
)

// OfflineError signals that an operation needs connectivity and offline
// queueing is disabled.
type OfflineError struct {
	Op string
}

// Error implements the error interface.
func (e *OfflineError) Error() string {
	return fmt.Sprintf("%s requires connectivity and offline queueing is disabled", e.Op)
}

// ConflictError bundles the unresolved conflicts of a sync attempt with
// their diffs.
type ConflictError struct {
	Conflicts []*resolver.Conflict
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d unresolved sync conflicts", len(e.Conflicts))
}
