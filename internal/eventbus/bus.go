package eventbus

import (
	"context"
	"sync"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventDelivery carries a delivered output batch for a session.
	EventDelivery EventType = "delivery"
	// EventQuery carries an answered terminal query.
	EventQuery EventType = "query"
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
)

// Event represents an observer-facing event emitted by the core service.
type Event struct {
	Type     EventType
	Delivery schema.DeliveryEvent
	Query    schema.QueryEvent
	Session  schema.SessionEvent
}

// Bus fanouts events to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session and returns a channel + cancel.
func (b *Bus) Subscribe(sessionID schema.SessionID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[sessionID] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("session", sessionID).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[sessionID]; subs != nil {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
		if b.log != nil {
			b.log.With("session", sessionID).Debug("eventbus unsubscribe")
		}
	}
}

// OnDelivery publishes a delivery event.
func (b *Bus) OnDelivery(event schema.DeliveryEvent) {
	b.publish(event.SessionID, Event{Type: EventDelivery, Delivery: event})
}

// OnQuery publishes a query event.
func (b *Bus) OnQuery(event schema.QueryEvent) {
	b.publish(event.SessionID, Event{Type: EventQuery, Query: event})
}

// OnSessionEvent publishes a session lifecycle event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(event.SessionID, Event{Type: EventSession, Session: event})
}

func (b *Bus) publish(sessionID schema.SessionID, event Event) {
	if b == nil {
		return
	}
	// Sends stay under the lock so an unsubscribe cannot close a channel
	// mid-publish; they never block thanks to the buffered select.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs[sessionID] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("session", sessionID).Trace("eventbus dropped", "count", dropped)
	}
}
