package server

import (
	"context"
	"log/slog"
	"sync"

	"housing-chat/auth"
	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"
	"housing-chat/infrastructure/grpc/chatapi"
	"housing-chat/services"
	"housing-chat/sink"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ chatapi.ChatServiceServer = (*ChatServer)(nil)

type ChatServer struct {
	chatService          services.IChatService
	connectionBufferSize int
	log                  *slog.Logger
	done                 chan struct{}
	once                 sync.Once
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, connectionBufferSize int) *ChatServer {
	return &ChatServer{
		chatService:          chatService,
		connectionBufferSize: connectionBufferSize,
		log:                  log,
		done:                 make(chan struct{}),
	}
}

// Shutdown ends every open Connect stream with Unavailable and refuses new ones.
// Call it before GracefulStop, which otherwise waits for streams forever.
func (s *ChatServer) Shutdown() {
	s.once.Do(func() { close(s.done) })
}

// FindOrCreateChat is called by MemberA, the user opening the conversation from a listing.
func (s *ChatServer) FindOrCreateChat(ctx context.Context, req *chatapi.FindOrCreateChatRequest) (*chatapi.ChatResponse, error) {
	if err := auth.Authorize(ctx, chat.Identity(req.MemberA)); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	c, err := s.chatService.FindOrCreateChat(ctx, chat.FindOrCreateCommand{
		MemberA: chat.Identity(req.MemberA),
		MemberB: chat.Identity(req.MemberB),
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.ChatResponse{Chat: chatapi.FromChat(c)}, nil
}

func (s *ChatServer) ListChatsForUser(ctx context.Context, req *chatapi.ListChatsForUserRequest) (*chatapi.ListChatsResponse, error) {
	identity := chat.Identity(req.Identity)
	if err := auth.Authorize(ctx, identity); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	chats, err := s.chatService.ListChatsForUser(ctx, identity)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.ListChatsResponse{Chats: chatapi.FromChats(chats)}, nil
}

// SubmitMessage persists then relays. The stored record is returned even when
// the receiver is offline.
func (s *ChatServer) SubmitMessage(ctx context.Context, req *chatapi.SubmitMessageRequest) (*chatapi.MessageResponse, error) {
	sender := chat.Identity(req.SenderID)
	if err := auth.Authorize(ctx, sender); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	msg, err := s.chatService.SubmitMessage(ctx, chat.SubmitMessageCommand{
		ChatID:   chat.ChatID(req.ChatID),
		SenderID: sender,
		Text:     req.Text,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.MessageResponse{Message: chatapi.FromMessage(msg)}, nil
}

func (s *ChatServer) ListMessages(ctx context.Context, req *chatapi.ListMessagesRequest) (*chatapi.MessagesResponse, error) {
	messages, err := s.chatService.ListMessages(ctx, chat.ChatID(req.ChatID))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.MessagesResponse{Messages: chatapi.FromMessages(messages)}, nil
}

func (s *ChatServer) RelayMessage(ctx context.Context, req *chatapi.RelayMessageRequest) (*chatapi.MessageResponse, error) {
	sender := chat.Identity(req.SenderID)
	if err := auth.Authorize(ctx, sender); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	msg, err := s.chatService.RelayMessage(ctx, chat.RelayCommand{
		ChatID:    chat.ChatID(req.ChatID),
		MessageID: chat.MessageID(req.MessageID),
		SenderID:  sender,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.MessageResponse{Message: chatapi.FromMessage(msg)}, nil
}

func (s *ChatServer) GetPresence(ctx context.Context, req *chatapi.GetPresenceRequest) (*chatapi.GetPresenceResponse, error) {
	identity := chat.Identity(req.Identity)
	if err := auth.Authorize(ctx, identity); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	other, online, err := s.chatService.CounterpartOnline(ctx, chat.ChatID(req.ChatID), identity)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.GetPresenceResponse{Counterpart: string(other), Online: online}, nil
}

func (s *ChatServer) SearchMessages(ctx context.Context, req *chatapi.SearchMessagesRequest) (*chatapi.MessagesResponse, error) {
	messages, err := s.chatService.SearchMessages(ctx, chat.SearchCommand{
		ChatID: chat.ChatID(req.ChatID),
		Query:  req.Query,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatapi.MessagesResponse{Messages: chatapi.FromMessages(messages)}, nil
}

// Connect registers the stream as a live connection of identity and pushes
// presence snapshots and deliveries until the client goes away.
// Keepalive failures cancel the stream context, which disconnects it.
func (s *ChatServer) Connect(req *chatapi.ConnectRequest, stream chatapi.ChatService_ConnectServer) error {
	identity := chat.Identity(req.Identity)
	if err := auth.Authorize(stream.Context(), identity); err != nil {
		return errors.MapToGRPCError(err)
	}

	select {
	case <-s.done:
		return status.Error(codes.Unavailable, "server is shutting down")
	default:
	}

	conn := sink.NewConnectionSink(chat.ConnectionID(uuid.NewString()), s.connectionBufferSize)
	if err := s.chatService.Connect(identity, conn.ID, conn); err != nil {
		return errors.MapToGRPCError(err)
	}
	defer func() {
		conn.Close()
		s.chatService.Disconnect(conn.ID)
	}()

	push := func(evt event.DomainEvent) error {
		out, ok := chatapi.FromEvent(evt)
		if !ok {
			return nil
		}
		if err := stream.Send(out); err != nil {
			s.log.Error("failed to push event to stream",
				"identity", identity,
				"connection_id", conn.ID,
				"error", err)
			return err
		}
		return nil
	}

	for {
		select {
		case <-stream.Context().Done():
			s.log.Debug("Client disconnected", "identity", identity, "connection_id", conn.ID)
			return nil
		case <-s.done:
			s.log.Debug("Closing stream for shutdown", "identity", identity, "connection_id", conn.ID)
			return status.Error(codes.Unavailable, "server is shutting down")
		case evt := <-conn.Presence:
			if err := push(evt); err != nil {
				return err
			}
		case evt := <-conn.Events:
			if err := push(evt); err != nil {
				return err
			}
		}
	}
}
