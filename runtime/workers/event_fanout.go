package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"housing-chat/contract"
	"housing-chat/domain/event"
)

// EventFanout broadcasts stored-message events to the permanent sinks (search index, ...).
//
// Delivery is best-effort: a sink that fails or exceeds its timeout is logged and skipped.
// It never sits on the send path of a chat message.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, s := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := s.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink rejected event", "sink", fmt.Sprintf("%T", s), "error", err)
		}
		cancel()
	}
}
