package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsRuleDocumentChanges(t *testing.T) {
	dir := t.TempDir()
	state := &State{}
	events := NewEvents(nil, "", nil)

	changed := make(chan Event, 4)
	events.Subscribe(func(ev Event) {
		if ev.Type == EventLocalChange {
			changed <- ev
		}
	})

	w, err := NewWatcher([]string{dir}, 50*time.Millisecond, state, events, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "naming.yaml"), []byte("id: naming-001\n"), 0644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no local_change event after rule file write")
	}
	assert.Greater(t, state.Snapshot().PendingChanges, 0)
}

func TestWatcherIgnoresNonRuleFiles(t *testing.T) {
	dir := t.TempDir()
	state := &State{}
	events := NewEvents(nil, "", nil)

	changed := make(chan Event, 4)
	events.Subscribe(func(ev Event) {
		if ev.Type == EventLocalChange {
			changed <- ev
		}
	})

	w, err := NewWatcher([]string{dir}, 50*time.Millisecond, state, events, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0644))

	select {
	case ev := <-changed:
		t.Fatalf("unexpected local_change event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 0, state.Snapshot().PendingChanges)
}
