package client

import (
	"context"
	goerrors "errors"
	"io"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/infrastructure/grpc/chatapi"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// ChatClient speaks to a housing-chat server in domain types.
type ChatClient struct {
	Client chatapi.ChatServiceClient
	conn   *grpc.ClientConn
	token  string
}

func NewChatClient(client chatapi.ChatServiceClient, token string) *ChatClient {
	return &ChatClient{Client: client, token: token}
}

// Dial opens a connection to addr. token is sent as a bearer token when not empty.
func Dial(addr, token string) (*ChatClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: false,
		}),
	)
	if err != nil {
		return nil, err
	}
	return &ChatClient{Client: chatapi.NewChatServiceClient(conn), conn: conn, token: token}, nil
}

func (c *ChatClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *ChatClient) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *ChatClient) FindOrCreateChat(ctx context.Context, me, other chat.Identity) (chat.Chat, error) {
	res, err := c.Client.FindOrCreateChat(c.withToken(ctx), &chatapi.FindOrCreateChatRequest{
		MemberA: string(me),
		MemberB: string(other),
	})
	if err != nil {
		return chat.Chat{}, err
	}
	return res.Chat.ToDomain(), nil
}

func (c *ChatClient) ListChats(ctx context.Context, identity chat.Identity) ([]chat.Chat, error) {
	res, err := c.Client.ListChatsForUser(c.withToken(ctx), &chatapi.ListChatsForUserRequest{Identity: string(identity)})
	if err != nil {
		return nil, err
	}
	return lo.Map(res.Chats, func(item chatapi.Chat, _ int) chat.Chat { return item.ToDomain() }), nil
}

func (c *ChatClient) Send(ctx context.Context, chatID chat.ChatID, sender chat.Identity, text string) (chat.Message, error) {
	res, err := c.Client.SubmitMessage(c.withToken(ctx), &chatapi.SubmitMessageRequest{
		ChatID:   string(chatID),
		SenderID: string(sender),
		Text:     text,
	})
	if err != nil {
		return chat.Message{}, err
	}
	return res.Message.ToDomain(), nil
}

func (c *ChatClient) History(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error) {
	res, err := c.Client.ListMessages(c.withToken(ctx), &chatapi.ListMessagesRequest{ChatID: string(chatID)})
	if err != nil {
		return nil, err
	}
	return toMessages(res.Messages), nil
}

func (c *ChatClient) Search(ctx context.Context, chatID chat.ChatID, query string, limit int) ([]chat.Message, error) {
	res, err := c.Client.SearchMessages(c.withToken(ctx), &chatapi.SearchMessagesRequest{
		ChatID: string(chatID),
		Query:  query,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return toMessages(res.Messages), nil
}

func (c *ChatClient) CounterpartOnline(ctx context.Context, chatID chat.ChatID, me chat.Identity) (chat.Identity, bool, error) {
	res, err := c.Client.GetPresence(c.withToken(ctx), &chatapi.GetPresenceRequest{ChatID: string(chatID), Identity: string(me)})
	if err != nil {
		return "", false, err
	}
	return chat.Identity(res.Counterpart), res.Online, nil
}

// Listen streams events for identity until ctx ends or the server closes the stream.
// handle runs on the calling goroutine.
func (c *ChatClient) Listen(ctx context.Context, identity chat.Identity, handle func(*chatapi.ChatEvent)) error {
	stream, err := c.Client.Connect(c.withToken(ctx), &chatapi.ConnectRequest{Identity: string(identity)})
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if goerrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(evt)
	}
}

func toMessages(messages []chatapi.Message) []chat.Message {
	return lo.Map(messages, func(item chatapi.Message, _ int) chat.Message { return item.ToDomain() })
}
