package workers

import (
	"context"
	"log/slog"
	"time"

	"atelier-chat/contract"
	"atelier-chat/domain/event"
	"atelier-chat/observability"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout delivers domain events to the permanent sinks (search
// index, projections) and to every connection currently subscribed to
// the event's room. Membership is resolved at delivery time, not at
// send time, so a join or leave during an in-flight delivery may be
// included or excluded but never corrupts anything.
//
// Delivery to one sink is fire-and-forget relative to the others:
// sinks get a bounded context and connection sinks never block, so a
// slow or broken connection cannot stall the room. Events arrive on a
// single channel fed serially per room, which preserves per-room order
// end to end.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	events         chan event.DomainEvent
	sinkTimeout    time.Duration
	monitoring     *observability.Manager
}

func NewEventFanout(
	log *slog.Logger,
	registry contract.IRegistry,
	permanentSinks []contract.EventSink,
	events chan event.DomainEvent,
	sinkTimeout time.Duration,
	monitoring *observability.Manager) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		permanentSinks: permanentSinks,
		events:         events,
		sinkTimeout:    sinkTimeout,
		monitoring:     monitoring,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to permanent sinks, then to the room's
// current members (the sender's own connection included).
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	_, isMessage := evt.(event.MessageStored)
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, evt, false)
	}
	for _, sink := range w.registry.SinksForRoom(evt.Room()) {
		w.consume(ctx, sink, evt, isMessage)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent, counted bool) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	if err := sink.Consume(sinkCtx, evt); err != nil {
		if counted {
			w.monitoring.MessageDropped()
		}
		w.log.Debug("Sink refused event", "room", evt.Room(), "error", err)
		return
	}
	if counted {
		w.monitoring.MessageDelivered()
	}
}
