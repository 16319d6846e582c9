package chatapi

import (
	"housing-chat/domain/chat"
	"housing-chat/domain/event"

	"github.com/samber/lo"
)

func FromChat(c chat.Chat) Chat {
	return Chat{
		ID:        string(c.ID),
		Members:   []string{string(c.Members[0]), string(c.Members[1])},
		CreatedAt: c.CreatedAt,
	}
}

func FromChats(chats []chat.Chat) []Chat {
	return lo.Map(chats, func(item chat.Chat, _ int) Chat { return FromChat(item) })
}

func FromMessage(m chat.Message) Message {
	return Message{
		ID:         string(m.ID),
		ChatID:     string(m.ChatID),
		SenderID:   string(m.SenderID),
		ReceiverID: string(m.ReceiverID),
		Text:       m.Text,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
	}
}

func FromMessages(messages []chat.Message) []Message {
	return lo.Map(messages, func(item chat.Message, _ int) Message { return FromMessage(item) })
}

// FromEvent converts a connection event, false for events clients never see.
func FromEvent(e event.DomainEvent) (*ChatEvent, bool) {
	switch evt := e.(type) {
	case event.PresenceChanged:
		return &ChatEvent{Presence: lo.ToPtr(FromPresence(evt))}, true
	case event.MessageDelivered:
		return &ChatEvent{Deliver: lo.ToPtr(FromMessage(evt.Message))}, true
	default:
		return nil, false
	}
}

func FromPresence(evt event.PresenceChanged) PresenceEvent {
	return PresenceEvent{
		Identities: lo.Map(evt.Online, func(item chat.Identity, _ int) string { return string(item) }),
		At:         evt.At,
	}
}

func (c Chat) ToDomain() chat.Chat {
	var members chat.Pair
	copy(members[:], lo.Map(c.Members, func(item string, _ int) chat.Identity { return chat.Identity(item) }))
	return chat.Chat{ID: chat.ChatID(c.ID), Members: members, CreatedAt: c.CreatedAt}
}

func (m Message) ToDomain() chat.Message {
	return chat.Message{
		ID:         chat.MessageID(m.ID),
		ChatID:     chat.ChatID(m.ChatID),
		SenderID:   chat.Identity(m.SenderID),
		ReceiverID: chat.Identity(m.ReceiverID),
		Text:       m.Text,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
	}
}
