package chat

import "time"

type MessageID string

// Message represents an immutable chat entry.
// Seq and CreatedAt are assigned by the message store; inside a chat they
// define the total order clients render.
type Message struct {
	ID         MessageID
	ChatID     ChatID
	SenderID   Identity
	ReceiverID Identity
	Text       string
	Seq        uint64
	CreatedAt  time.Time
}
