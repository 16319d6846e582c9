// Package chatapi is the wire contract of housingchat.v1.ChatService.
// Messages are plain structs carried by the CBOR codec.
package chatapi

import "time"

type Chat struct {
	ID        string    `cbor:"id" json:"id"`
	Members   []string  `cbor:"members" json:"members"`
	CreatedAt time.Time `cbor:"created_at" json:"createdAt"`
}

type Message struct {
	ID         string    `cbor:"id" json:"id"`
	ChatID     string    `cbor:"chat_id" json:"chatId"`
	SenderID   string    `cbor:"sender_id" json:"senderId"`
	ReceiverID string    `cbor:"receiver_id" json:"receiverId"`
	Text       string    `cbor:"text" json:"text"`
	Seq        uint64    `cbor:"seq" json:"seq"`
	CreatedAt  time.Time `cbor:"created_at" json:"createdAt"`
}

type FindOrCreateChatRequest struct {
	MemberA string `cbor:"member_a"`
	MemberB string `cbor:"member_b"`
}

type ChatResponse struct {
	Chat Chat `cbor:"chat"`
}

type ListChatsForUserRequest struct {
	Identity string `cbor:"identity"`
}

type ListChatsResponse struct {
	Chats []Chat `cbor:"chats"`
}

type SubmitMessageRequest struct {
	ChatID   string `cbor:"chat_id"`
	SenderID string `cbor:"sender_id"`
	Text     string `cbor:"text"`
}

type MessageResponse struct {
	Message Message `cbor:"message"`
}

type ListMessagesRequest struct {
	ChatID string `cbor:"chat_id"`
}

type MessagesResponse struct {
	Messages []Message `cbor:"messages"`
}

type RelayMessageRequest struct {
	ChatID    string `cbor:"chat_id"`
	MessageID string `cbor:"message_id"`
	SenderID  string `cbor:"sender_id"`
}

type GetPresenceRequest struct {
	ChatID   string `cbor:"chat_id"`
	Identity string `cbor:"identity"`
}

type GetPresenceResponse struct {
	Counterpart string `cbor:"counterpart"`
	Online      bool   `cbor:"online"`
}

type SearchMessagesRequest struct {
	ChatID string `cbor:"chat_id"`
	Query  string `cbor:"query"`
	Limit  int    `cbor:"limit"`
}

type ConnectRequest struct {
	Identity string `cbor:"identity"`
}

// ChatEvent carries exactly one of Presence or Deliver.
type ChatEvent struct {
	Presence *PresenceEvent `cbor:"presence,omitempty"`
	Deliver  *Message       `cbor:"deliver,omitempty"`
}

type PresenceEvent struct {
	Identities []string  `cbor:"identities" json:"identities"`
	At         time.Time `cbor:"at" json:"at"`
}
