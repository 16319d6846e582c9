package sink_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"
	"housing-chat/sink"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Consume(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewConnectionSink("c-1", 2)
	evt := event.MessageDelivered{Message: chat.Message{ID: "m-1", CreatedAt: time.Now()}}

	// Given a buffer of two events
	req.NoError(s.Consume(ctx, evt))
	req.NoError(s.Consume(ctx, evt))

	// When it is full, the next event is dropped without blocking
	req.ErrorIs(s.Consume(ctx, evt), errors.ErrSinkFull)
	req.ErrorIs(s.Consume(ctx, evt), errors.ErrDelivery)
	req.Len(s.Events, 2)

	// Then buffered events come out in order
	got := <-s.Events
	req.Equal(evt, got)
}

func TestConnectionSink_Close(t *testing.T) {
	req := require.New(t)
	s := sink.NewConnectionSink("c-1", 4)

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		req.Fail("Done should be closed")
	}
	req.ErrorIs(s.Consume(context.Background(), event.PresenceChanged{}), errors.ErrSinkClosed)
	req.Empty(s.Events)
}

func TestConnectionSink_PresenceKeepsLatestSnapshot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewConnectionSink("c-1", 1)

	// Given a delivery buffer that is already full
	req.NoError(s.Consume(ctx, event.MessageDelivered{Message: chat.Message{ID: "m-1"}}))
	req.ErrorIs(s.Consume(ctx, event.MessageDelivered{Message: chat.Message{ID: "m-2"}}), errors.ErrSinkFull)

	// When several snapshots arrive before the writer catches up
	req.NoError(s.Consume(ctx, event.PresenceChanged{Online: []chat.Identity{"alice@x.com"}}))
	req.NoError(s.Consume(ctx, event.PresenceChanged{Online: []chat.Identity{"alice@x.com", "bob@x.com"}}))
	req.NoError(s.Consume(ctx, event.PresenceChanged{Online: []chat.Identity{"bob@x.com"}}))

	// Then only the latest snapshot is pending, and deliveries are untouched
	req.Len(s.Presence, 1)
	got := <-s.Presence
	req.Equal([]chat.Identity{"bob@x.com"}, got.Online)
	req.Len(s.Events, 1)
}

func TestConnectionSink_PresenceFromConcurrentProducers(t *testing.T) {
	req := require.New(t)
	s := sink.NewConnectionSink("c-1", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req.NoError(s.Consume(context.Background(), event.PresenceChanged{Online: []chat.Identity{"alice@x.com"}}))
		}()
	}
	wg.Wait()

	req.Len(s.Presence, 1)
}
