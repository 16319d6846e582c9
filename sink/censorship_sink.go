package sink

import (
	"context"
	"log/slog"
	"sync"

	"housing-chat/domain/event"
)

// CensorshipSink counts the words the moderator replaced, per word.
type CensorshipSink struct {
	mu       sync.Mutex
	log      *slog.Logger
	messages uint64
	hit      map[string]uint64
}

func NewCensorshipSink(log *slog.Logger) *CensorshipSink {
	return &CensorshipSink{log: log, hit: make(map[string]uint64)}
}

func (s *CensorshipSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageStored)
	if !ok || len(evt.Censored) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages++
	for _, word := range evt.Censored {
		s.hit[word]++
	}
	s.log.Info("Censorship hit",
		"chat_id", evt.Message.ChatID,
		"sender_id", evt.Message.SenderID,
		"words", evt.Censored,
		"censored_messages", s.messages)
	return nil
}

// Hits returns a copy of the per-word counters and the number of censored messages.
func (s *CensorshipSink) Hits() (map[string]uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := make(map[string]uint64, len(s.hit))
	for word, n := range s.hit {
		hits[word] = n
	}
	return hits, s.messages
}
