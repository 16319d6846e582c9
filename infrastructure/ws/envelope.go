package ws

import (
	"encoding/json"
	goerrors "errors"
	"time"

	"housing-chat/errors"
	"housing-chat/infrastructure/grpc/chatapi"
)

// Envelope types exchanged over the socket.
const (
	TypeIdentify = "identify"
	TypePresence = "presence"
	TypeRelay    = "relay"
	TypeDeliver  = "deliver"
	TypeSend     = "send"
	TypeSent     = "sent"
	TypeError    = "error"
)

// Error codes carried by an error envelope.
const (
	CodeInvalid     = "invalid"
	CodeNotFound    = "not_found"
	CodeForbidden   = "forbidden"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// Envelope is one frame: {"type": "...", "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type IdentifyPayload struct {
	Identity string `json:"identity"`
	Token    string `json:"token,omitempty"`
}

type PresencePayload struct {
	Identities []string `json:"identities"`
}

// RelayPayload mirrors a message the client already sent. Only the ids are trusted.
type RelayPayload struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId,omitempty"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SendPayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

type MessagePayload struct {
	Message chatapi.Message `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(kind string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Payload: raw}, nil
}

// errorCode maps a domain error onto the codes clients switch on.
func errorCode(err error) string {
	switch {
	case goerrors.Is(err, errors.ErrUnknownChat), goerrors.Is(err, errors.ErrUnknownMessage):
		return CodeNotFound
	case goerrors.Is(err, errors.ErrValidation):
		return CodeInvalid
	case goerrors.Is(err, errors.ErrUnauthorized):
		return CodeForbidden
	case goerrors.Is(err, errors.ErrPersistence), goerrors.Is(err, errors.ErrSearchDisabled):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
