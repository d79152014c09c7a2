package core

import "pkt.systems/paneflow/schema"

// EventSink receives engine events: coalesced deliveries, answered
// queries, and session lifecycle transitions.
type EventSink interface {
	OnDelivery(event schema.DeliveryEvent)
	OnQuery(event schema.QueryEvent)
	OnSessionEvent(event schema.SessionEvent)
}
