package storage

import (
	"time"

	"housing-chat/domain/chat"
)

// diskChat is the CBOR layout of a chat in Badger.
type diskChat struct {
	ID        string `cbor:"id"`
	MemberA   string `cbor:"member_a"`
	MemberB   string `cbor:"member_b"`
	CreatedAt int64  `cbor:"created_at"`
}

// diskMessage is the CBOR layout of a message in Badger.
type diskMessage struct {
	ID         string `cbor:"id"`
	ChatID     string `cbor:"chat_id"`
	SenderID   string `cbor:"sender_id"`
	ReceiverID string `cbor:"receiver_id"`
	Text       string `cbor:"text"`
	Seq        uint64 `cbor:"seq"`
	CreatedAt  int64  `cbor:"created_at"`
}

func fromChat(c chat.Chat) diskChat {
	return diskChat{
		ID:        string(c.ID),
		MemberA:   string(c.Members[0]),
		MemberB:   string(c.Members[1]),
		CreatedAt: c.CreatedAt.UnixNano(),
	}
}

func toChat(d diskChat) chat.Chat {
	return chat.Chat{
		ID:        chat.ChatID(d.ID),
		Members:   chat.Pair{chat.Identity(d.MemberA), chat.Identity(d.MemberB)},
		CreatedAt: time.Unix(0, d.CreatedAt).UTC(),
	}
}

func fromMessage(m chat.Message) diskMessage {
	return diskMessage{
		ID:         string(m.ID),
		ChatID:     string(m.ChatID),
		SenderID:   string(m.SenderID),
		ReceiverID: string(m.ReceiverID),
		Text:       m.Text,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt.UnixNano(),
	}
}

func toMessage(d diskMessage) chat.Message {
	return chat.Message{
		ID:         chat.MessageID(d.ID),
		ChatID:     chat.ChatID(d.ChatID),
		SenderID:   chat.Identity(d.SenderID),
		ReceiverID: chat.Identity(d.ReceiverID),
		Text:       d.Text,
		Seq:        d.Seq,
		CreatedAt:  time.Unix(0, d.CreatedAt).UTC(),
	}
}
