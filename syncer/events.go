package syncer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType discriminates sync lifecycle events.
type EventType string

const (
	EventStart         EventType = "start"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventConflict      EventType = "conflict"
	EventOfflineQueued EventType = "offline_queued"
	EventLocalChange   EventType = "local_change"
	EventOnline        EventType = "online"
	EventOffline       EventType = "offline"
)

// Event is one discrete sync notification for external consumers.
type Event struct {
	Type    EventType `json:"type"`
	RuleID  string    `json:"rule_id,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Listener consumes sync events. Listener failures never interrupt a sync.
type Listener func(Event)

// Progress reports where a sync currently is for status display.
type Progress struct {
	Phase   string `json:"phase"` // push, pull, resolve, replay
	Current int    `json:"current"`
	Total   int    `json:"total"`
	RuleID  string `json:"rule_id,omitempty"`
}

// ProgressFunc consumes progress updates.
type ProgressFunc func(Progress)

// Events fans sync events out to in-process listeners and, when a NATS
// connection is configured, publishes them on <prefix>.<type> subjects.
// A nil connection skips publishing (graceful degradation).
type Events struct {
	mu        sync.Mutex
	listeners []Listener

	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewEvents creates an event hub. nc may be nil; subjectPrefix defaults to
// "rulesync.event".
func NewEvents(nc *nats.Conn, subjectPrefix string, logger *slog.Logger) *Events {
	if subjectPrefix == "" {
		subjectPrefix = "rulesync.event"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{nc: nc, subject: subjectPrefix, logger: logger}
}

// Subscribe registers an in-process listener.
func (e *Events) Subscribe(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Emit delivers an event to every listener and to NATS. A panicking
// listener or a failed publish is logged and dropped.
func (e *Events) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("Sync event listener panicked", slog.Any("panic", r))
				}
			}()
			l(ev)
		}()
	}

	if e.nc == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s", e.subject, ev.Type)
	if err := e.nc.Publish(subject, data); err != nil {
		e.logger.Warn("Failed to publish sync event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
