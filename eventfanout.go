package paneflow

import (
	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnDelivery(event schema.DeliveryEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnDelivery(event)
	}
}

func (f eventFanout) OnQuery(event schema.QueryEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnQuery(event)
	}
}

func (f eventFanout) OnSessionEvent(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionEvent(event)
	}
}
