// Package events implements the typed event bus that the task store and
// scheduler publish lifecycle notifications to. Subscribers (e.g. a
// WebSocket broadcaster in the API layer) register callbacks; a panicking
// callback must never affect scheduler state, so callbacks run recovered.
// They run synchronously on the publisher's goroutine, so a slow callback
// delays the publisher.
package events

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Type identifies the kind of lifecycle transition an Event describes.
type Type string

const (
	TaskAdded     Type = "TaskAdded"
	TaskStarted   Type = "TaskStarted"
	TaskCompleted Type = "TaskCompleted"
	TaskFailed    Type = "TaskFailed"
	TaskCancelled Type = "TaskCancelled"
	TaskRetried   Type = "TaskRetried"
	QueueCleared  Type = "QueueCleared"
	CacheCleared  Type = "CacheCleared"
)

// Event carries a task snapshot (as an opaque payload, to avoid a package
// cycle between events and tasks) plus an ISO-8601 timestamp.
type Event struct {
	Type      Type
	Timestamp time.Time
	TaskID    string
	Payload   any
}

// Handler receives published events. Handlers must not block for long;
// the bus logs and recovers any panic from a handler so one misbehaving
// subscriber cannot affect scheduler state.
type Handler func(Event)

// Bus is a simple synchronous, panic-isolated pub/sub bus.
type Bus struct {
	handlers []Handler
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler invoked for every published event.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Publish invokes every subscribed handler with the event, in
// registration order. Each handler runs behind a recover so a panicking
// callback cannot take down the publishing goroutine (scheduler or task
// store).
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	for _, h := range b.handlers {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(evt.Type)).
				Msg("events: recovered from panicking subscriber")
		}
	}()
	h(evt)
}
