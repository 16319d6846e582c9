package services

import (
	"context"

	"housing-chat/contract"
	"housing-chat/domain/chat"
)

// IChatService is everything a transport needs: chats, messages and presence.
type IChatService interface {
	FindOrCreateChat(ctx context.Context, cmd chat.FindOrCreateCommand) (chat.Chat, error)
	ListChatsForUser(ctx context.Context, identity chat.Identity) ([]chat.Chat, error)
	SubmitMessage(ctx context.Context, cmd chat.SubmitMessageCommand) (chat.Message, error)
	ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error)
	RelayMessage(ctx context.Context, cmd chat.RelayCommand) (chat.Message, error)
	CounterpartOnline(ctx context.Context, chatID chat.ChatID, identity chat.Identity) (chat.Identity, bool, error)
	SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error)
	Connect(identity chat.Identity, conn chat.ConnectionID, sink contract.EventSink) error
	Disconnect(conn chat.ConnectionID)
}

type ChatService struct {
	directory IChatDirectory
	router    IMessageRouter
	presence  contract.IPresence
}

func NewChatService(directory IChatDirectory, router IMessageRouter, presence contract.IPresence) *ChatService {
	return &ChatService{directory: directory, router: router, presence: presence}
}

func (s *ChatService) FindOrCreateChat(ctx context.Context, cmd chat.FindOrCreateCommand) (chat.Chat, error) {
	return s.directory.FindOrCreate(ctx, cmd)
}

func (s *ChatService) ListChatsForUser(ctx context.Context, identity chat.Identity) ([]chat.Chat, error) {
	return s.directory.ListForUser(ctx, identity)
}

func (s *ChatService) SubmitMessage(ctx context.Context, cmd chat.SubmitMessageCommand) (chat.Message, error) {
	return s.router.Submit(ctx, cmd)
}

func (s *ChatService) ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error) {
	return s.router.ListMessages(ctx, chatID)
}

func (s *ChatService) RelayMessage(ctx context.Context, cmd chat.RelayCommand) (chat.Message, error) {
	return s.router.Relay(ctx, cmd)
}

func (s *ChatService) CounterpartOnline(ctx context.Context, chatID chat.ChatID, identity chat.Identity) (chat.Identity, bool, error) {
	return s.router.CounterpartOnline(ctx, chatID, identity)
}

func (s *ChatService) SearchMessages(ctx context.Context, cmd chat.SearchCommand) ([]chat.Message, error) {
	return s.router.SearchMessages(ctx, cmd)
}

// Connect registers a live connection once its identity is known.
func (s *ChatService) Connect(identity chat.Identity, conn chat.ConnectionID, sink contract.EventSink) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	s.presence.Connect(identity, conn, sink)
	return nil
}

func (s *ChatService) Disconnect(conn chat.ConnectionID) {
	s.presence.Disconnect(conn)
}
