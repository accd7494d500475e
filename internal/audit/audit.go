// Package audit keeps the history of validation and generation decisions.
package audit

import (
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
)

// Event kinds.
const (
	KindContentValidationFailed = "content_validation_failed"
	KindAudioGenerated          = "audio_generated"
	KindGenerationFailed        = "generation_failed"
)

// Identity defaults.
const (
	AnonymousUser  = "anonymous"
	UnknownSession = "unknown"
)

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 1000

// Event is one audit record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"event_type"`
	Payload   map[string]any `json:"data"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
}

// Sink receives every appended event. Sink errors never reach the caller of Append.
type Sink interface {
	Publish(event Event) error
}

// Log is a bounded, append-only history. When full, the oldest event is
// dropped. It is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	events   []Event
	start    int
	count    int
	sink     Sink
	now      func() time.Time
	log      *logger.Logger
	disabled bool
}

// Option configures a Log.
type Option func(*Log)

// WithSink forwards every event to sink.
func WithSink(sink Sink) Option {
	return func(l *Log) {
		l.sink = sink
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Disabled turns Append into a no-op.
func Disabled() Option {
	return func(l *Log) {
		l.disabled = true
	}
}

// NewLog creates a Log holding at most capacity events.
func NewLog(capacity int, log *logger.Logger, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	auditLog := &Log{
		mu:     sync.Mutex{},
		events: make([]Event, capacity),
		now:    time.Now,
		log:    log,
	}

	for _, opt := range opts {
		opt(auditLog)
	}

	return auditLog
}

// Append records an event. Empty identities take their defaults. Append never
// fails.
func (l *Log) Append(kind string, payload map[string]any, userID, sessionID string) {
	if l.disabled {
		return
	}

	if userID == "" {
		userID = AnonymousUser
	}

	if sessionID == "" {
		sessionID = UnknownSession
	}

	event := Event{
		Timestamp: l.now(),
		Kind:      kind,
		Payload:   clonePayload(payload),
		UserID:    userID,
		SessionID: sessionID,
	}

	l.mu.Lock()

	capacity := len(l.events)
	if l.count < capacity {
		l.events[(l.start+l.count)%capacity] = event
		l.count++
	} else {
		l.events[l.start] = event
		l.start = (l.start + 1) % capacity
	}

	l.mu.Unlock()

	if l.sink == nil {
		return
	}

	published := event
	published.Payload = clonePayload(event.Payload)

	err := l.sink.Publish(published)
	if err != nil {
		l.log.Error("Failed to publish audit event %s: %v", kind, err)
	}
}

// Snapshot returns the retained events, oldest first. The result shares no
// state with the log.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]Event, 0, l.count)
	capacity := len(l.events)

	for i := range l.count {
		event := l.events[(l.start+i)%capacity]
		event.Payload = clonePayload(event.Payload)
		snapshot = append(snapshot, event)
	}

	return snapshot
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Clear drops every retained event.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.events)
	l.start = 0
	l.count = 0
}

// clonePayload copies the map and the string slices it holds.
func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	cloned := make(map[string]any, len(payload))
	for key, value := range payload {
		switch typed := value.(type) {
		case []string:
			cloned[key] = slices.Clone(typed)
		case []any:
			cloned[key] = slices.Clone(typed)
		default:
			cloned[key] = value
		}
	}

	return cloned
}
