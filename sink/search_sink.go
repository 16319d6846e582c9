package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"housing-chat/contract"
	"housing-chat/domain/chat"
	"housing-chat/domain/event"
)

// SearchSink feeds stored messages to the full-text index in batches.
// A batch is flushed when it reaches maxBatch or bufferTimeout after its first message.
type SearchSink struct {
	mu            sync.Mutex
	timer         *time.Timer
	index         contract.MessageIndex
	log           *slog.Logger
	messages      []chat.Message
	maxBatch      int
	bufferTimeout time.Duration
}

func NewSearchSink(index contract.MessageIndex, log *slog.Logger, maxBatch int, bufferTimeout time.Duration) *SearchSink {
	return &SearchSink{index: index, log: log, maxBatch: maxBatch, bufferTimeout: bufferTimeout}
}

// Consume implements the EventSink interface. Only MessageStored events are kept.
func (s *SearchSink) Consume(ctx context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageStored)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.messages = append(s.messages, evt.Message)
	if len(s.messages) == 1 && s.timer == nil {
		s.timer = time.AfterFunc(s.bufferTimeout, func() {
			if err := s.Flush(context.Background()); err != nil {
				s.log.Error("Timeout flush of search batch failed", "error", err)
			}
		})
	}
	isFull := len(s.messages) >= s.maxBatch
	s.mu.Unlock()

	if isFull {
		return s.Flush(ctx)
	}
	return nil
}

// Flush indexes the pending batch. Called on size, on timeout and at shutdown.
func (s *SearchSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	batch := s.messages
	s.messages = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	s.log.Debug("Indexing messages", "count", len(batch))
	return s.index.IndexBatch(ctx, batch)
}
