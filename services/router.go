package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"housing-chat/contract"
	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

type IMessageRouter interface {
	Submit(ctx context.Context, cmd chat.SubmitMessageCommand) (chat.Message, error)
	ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error)
	Relay(ctx context.Context, cmd chat.RelayCommand) (chat.Message, error)
	CounterpartOnline(ctx context.Context, chatID chat.ChatID, identity chat.Identity) (chat.Identity, bool, error)
	SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
}

// MessageRouter persists messages and relays them to the receiver's live connections.
// Nothing is relayed unless the store accepted it first.
type MessageRouter struct {
	directory     IChatDirectory
	store         contract.MessageStore
	presence      contract.IPresence
	index         contract.MessageIndex
	censor        contract.Censor
	events        chan<- event.DomainEvent
	log           *slog.Logger
	maxTextLength int
}

func NewMessageRouter(directory IChatDirectory, store contract.MessageStore,
	presence contract.IPresence, log *slog.Logger, maxTextLength int) *MessageRouter {
	return &MessageRouter{
		directory:     directory,
		store:         store,
		presence:      presence,
		log:           log,
		maxTextLength: maxTextLength,
	}
}

// WithCensor enables moderation of submitted texts.
func (r *MessageRouter) WithCensor(censor contract.Censor) *MessageRouter {
	r.censor = censor
	return r
}

// WithIndex enables SearchMessages.
func (r *MessageRouter) WithIndex(index contract.MessageIndex) *MessageRouter {
	r.index = index
	return r
}

// WithEvents publishes a MessageStored event for each persisted message.
func (r *MessageRouter) WithEvents(events chan<- event.DomainEvent) *MessageRouter {
	r.events = events
	return r
}

// Submit validates, persists, then relays. The persisted record is returned
// whether or not the receiver is online.
func (r *MessageRouter) Submit(ctx context.Context, cmd chat.SubmitMessageCommand) (chat.Message, error) {
	if err := chat.ValidateText(cmd.Text, r.maxTextLength); err != nil {
		return chat.Message{}, err
	}
	if err := chat.ValidateCommand(cmd); err != nil {
		return chat.Message{}, err
	}
	c, err := r.directory.GetChat(ctx, cmd.ChatID)
	if err != nil {
		return chat.Message{}, err
	}
	receiver, ok := c.Members.Other(cmd.SenderID)
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %s in chat %s", errors.ErrNotMember, cmd.SenderID, c.ID)
	}

	text := cmd.Text
	var words []string
	if r.censor != nil {
		text, words = r.censor.Censor(text)
		if len(words) > 0 {
			r.log.Debug("Message censored", "chat_id", c.ID, "words", words)
		}
	}

	stored, err := r.store.AppendMessage(ctx, chat.Message{
		ID:         chat.MessageID(uuid.NewString()),
		ChatID:     c.ID,
		SenderID:   cmd.SenderID,
		ReceiverID: receiver,
		Text:       text,
	})
	if err != nil {
		return chat.Message{}, err
	}

	r.publish(stored, words)
	r.deliver(ctx, stored)
	return stored, nil
}

func (r *MessageRouter) ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error) {
	if _, err := r.directory.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	messages, err := r.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// Relay pushes an already persisted message to the receiver again.
// The stored record is sent, never what the client claims it wrote.
func (r *MessageRouter) Relay(ctx context.Context, cmd chat.RelayCommand) (chat.Message, error) {
	if err := chat.ValidateCommand(cmd); err != nil {
		return chat.Message{}, err
	}
	c, err := r.directory.GetChat(ctx, cmd.ChatID)
	if err != nil {
		return chat.Message{}, err
	}
	if !c.Members.Has(cmd.SenderID) {
		return chat.Message{}, fmt.Errorf("%w: %s in chat %s", errors.ErrNotMember, cmd.SenderID, c.ID)
	}
	msg, err := r.store.GetMessage(ctx, c.ID, cmd.MessageID)
	if goerrors.Is(err, errors.ErrNotFound) {
		return chat.Message{}, fmt.Errorf("%w: %s", errors.ErrUnknownMessage, cmd.MessageID)
	}
	if err != nil {
		return chat.Message{}, err
	}
	if msg.SenderID != cmd.SenderID {
		return chat.Message{}, fmt.Errorf("%w: %s did not write message %s", errors.ErrNotMember, cmd.SenderID, msg.ID)
	}
	r.deliver(ctx, msg)
	return msg, nil
}

// CounterpartOnline reports the other member of the chat and whether it is connected right now.
func (r *MessageRouter) CounterpartOnline(ctx context.Context, chatID chat.ChatID, identity chat.Identity) (chat.Identity, bool, error) {
	c, err := r.directory.GetChat(ctx, chatID)
	if err != nil {
		return "", false, err
	}
	other, ok := c.Members.Other(identity)
	if !ok {
		return "", false, fmt.Errorf("%w: %s in chat %s", errors.ErrNotMember, identity, c.ID)
	}
	return other, r.presence.IsOnline(other), nil
}

func (r *MessageRouter) SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	if r.index == nil {
		return nil, errors.ErrSearchDisabled
	}
	if err := chat.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	if _, err := r.directory.GetChat(ctx, cmd.ChatID); err != nil {
		return nil, err
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	ids, err := r.index.Search(ctx, cmd.ChatID, cmd.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", errors.ErrPersistence, err)
	}

	messages := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := r.store.GetMessage(ctx, cmd.ChatID, id)
		if goerrors.Is(err, errors.ErrNotFound) {
			r.log.Debug("Indexed message missing from store", "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// deliver is best-effort: a full or closed connection only loses the live push.
func (r *MessageRouter) deliver(ctx context.Context, msg chat.Message) {
	sinks := r.presence.SinksFor(msg.ReceiverID)
	if len(sinks) == 0 {
		r.log.Debug("Receiver offline, message kept for history", "message_id", msg.ID, "receiver", msg.ReceiverID)
		return
	}
	failed := lo.Filter(sinks, func(s contract.EventSink, _ int) bool {
		return s.Consume(ctx, event.MessageDelivered{Message: msg}) != nil
	})
	if len(failed) > 0 {
		r.log.Debug("Message not delivered to every connection",
			"message_id", msg.ID, "failed", len(failed), "connections", len(sinks))
	}
}

func (r *MessageRouter) publish(msg chat.Message, censored []string) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- event.MessageStored{Message: msg, Censored: censored}:
	default:
		r.log.Warn("Event channel full, stored message not published", "message_id", msg.ID)
	}
}
