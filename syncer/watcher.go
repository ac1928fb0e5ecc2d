package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches local rule source directories and reports changed rule
// documents as pending local changes. Changes are debounced so an editor
// save burst counts once per file.
type Watcher struct {
	roots    []string
	debounce time.Duration
	state    *State
	events   *Events
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// NewWatcher creates a source watcher over the given root directories.
func NewWatcher(roots []string, debounce time.Duration, state *State, events *Events, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		roots:    roots,
		debounce: debounce,
		state:    state,
		events:   events,
		logger:   logger,
		watcher:  fsw,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching. It returns after registering the watches; event
// processing runs until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			w.logger.Debug("Skipping unwatchable rule source", slog.String("path", root), slog.String("error", err.Error()))
		}
	}
	go w.run(ctx)
	w.logger.Info("Rule source watcher started", slog.Int("roots", len(w.roots)))
	return nil
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isRuleDocument(ev.Name) {
				// New directories need a watch of their own.
				if ev.Op.Has(fsnotify.Create) {
					_ = w.addRecursive(ev.Name)
				}
				continue
			}
			w.pendingMu.Lock()
			w.pending[ev.Name] = struct{}{}
			w.pendingMu.Unlock()
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rule source watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			w.flush()
		}
	}
}

// flush converts the debounced change set into pending-change state and a
// local_change event.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	changed := len(w.pending)
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if changed == 0 {
		return
	}
	if w.state != nil {
		w.state.addPending(changed)
	}
	if w.events != nil {
		w.events.Emit(Event{Type: EventLocalChange, Message: "local rule documents changed"})
	}
	w.logger.Debug("Local rule changes detected", slog.Int("files", changed))
}

func isRuleDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
