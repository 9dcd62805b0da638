package jobs

import (
	"sync"
	"time"
)

// EventType classifies messages emitted during a conversion run.
type EventType string

const (
	EventTypeLog       EventType = "log"
	EventTypeProgress  EventType = "progress"
	EventTypeComplete  EventType = "complete"
	EventTypeCancelled EventType = "cancelled"
	EventTypeError     EventType = "error"
)

// Level is the severity attached to log events.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a sequenced payload consumed by UI subscribers. Which fields are
// set depends on Type.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	Type      EventType `json:"type"`

	Message string `json:"message,omitempty"`
	Level   Level  `json:"level,omitempty"`

	Overall float64 `json:"overall,omitempty"`
	Current float64 `json:"current,omitempty"`
	File    string  `json:"file,omitempty"`

	Converted   int64         `json:"converted,omitempty"`
	Skipped     int64         `json:"skipped,omitempty"`
	Errors      int64         `json:"errors,omitempty"`
	InputBytes  int64         `json:"inputBytes,omitempty"`
	OutputBytes int64         `json:"outputBytes,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventTypeComplete, EventTypeCancelled, EventTypeError:
		return true
	default:
		return false
	}
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
