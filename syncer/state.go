package syncer

import (
	"sync"
	"time"
)

// State is the orchestrator's process-wide sync state: one instance per
// orchestrator, updated only by the orchestrator, read by callers for
// status display.
type State struct {
	mu             sync.Mutex
	lastSyncAt     time.Time
	syncing        bool
	offline        bool
	pendingChanges int
}

// Snapshot is a consistent read of the sync state.
type Snapshot struct {
	LastSyncAt     time.Time `json:"last_sync_at"`
	IsSyncing      bool      `json:"is_syncing"`
	IsOffline      bool      `json:"is_offline"`
	PendingChanges int       `json:"pending_changes"`
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		LastSyncAt:     s.lastSyncAt,
		IsSyncing:      s.syncing,
		IsOffline:      s.offline,
		PendingChanges: s.pendingChanges,
	}
}

// beginSync flips the mutual-exclusion flag. It fails when a sync is
// already in flight.
func (s *State) beginSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return ErrSyncInProgress
	}
	s.syncing = true
	return nil
}

// endSync clears the in-flight flag. Always called via defer so the flag
// is released on every exit path.
func (s *State) endSync() {
	s.mu.Lock()
	s.syncing = false
	s.mu.Unlock()
}

// markSynced records the completion time of a fully successful sync and
// clears the pending-change counter.
func (s *State) markSynced(at time.Time) {
	s.mu.Lock()
	s.lastSyncAt = at
	s.pendingChanges = 0
	s.mu.Unlock()
}

// lastSync returns the last successful sync time.
func (s *State) lastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt
}

// setOffline flips the connectivity flag and reports whether the value
// changed.
func (s *State) setOffline(offline bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.offline != offline
	s.offline = offline
	return changed
}

// isOffline reads the connectivity flag.
func (s *State) isOffline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// addPending bumps the pending local change counter.
func (s *State) addPending(n int) {
	s.mu.Lock()
	s.pendingChanges += n
	s.mu.Unlock()
}
