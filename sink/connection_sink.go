package sink

import (
	"context"
	"sync"

	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"
)

// ConnectionSink is the outbound buffer of one live connection.
// The presence registry and the router push into it; the transport's
// write loop drains Events and Presence and stops once Done is closed.
type ConnectionSink struct {
	ID     chat.ConnectionID
	Events chan event.DomainEvent
	// Presence holds the latest snapshot not yet written. A newer one replaces it.
	Presence chan event.PresenceChanged
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
}

func NewConnectionSink(id chat.ConnectionID, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		ID:       id,
		Events:   make(chan event.DomainEvent, bufferSize),
		Presence: make(chan event.PresenceChanged, 1),
		done:     make(chan struct{}),
	}
}

// Consume never blocks: a full buffer or a closed connection drops the event.
// Presence snapshots are never dropped, they coalesce into the latest one.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	default:
	}
	if p, ok := e.(event.PresenceChanged); ok {
		s.offerPresence(p)
		return nil
	}
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSinkFull
	}
}

// offerPresence replaces any unsent snapshot. The reader only removes from
// the slot, so once emptied under the lock the send cannot block.
func (s *ConnectionSink) offerPresence(p event.PresenceChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.Presence:
	default:
	}
	s.Presence <- p
}

// Close marks the connection as gone. Events is left open so late producers never panic.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}
