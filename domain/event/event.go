package event

import (
	"time"

	"housing-chat/domain/chat"
)

// DomainEvent is anything pushed to a connection or a permanent sink.
type DomainEvent interface {
	OccurredAt() time.Time
}

// PresenceChanged carries the full online snapshot after a connect or disconnect.
type PresenceChanged struct {
	Online []chat.Identity
	At     time.Time
}

func (p PresenceChanged) OccurredAt() time.Time { return p.At }

// MessageDelivered is the live push of a persisted message to its receiver.
type MessageDelivered struct {
	Message chat.Message
}

func (m MessageDelivered) OccurredAt() time.Time { return m.Message.CreatedAt }

// MessageStored is published once a message is durable, for side effects like indexing.
type MessageStored struct {
	Message chat.Message
	// Censored lists the words the moderator replaced, empty when moderation is off.
	Censored []string
}

func (m MessageStored) OccurredAt() time.Time { return m.Message.CreatedAt }
