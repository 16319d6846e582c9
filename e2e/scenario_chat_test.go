package e2e

import (
	"context"
	"testing"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/infrastructure/grpc/chatapi"
	"housing-chat/infrastructure/grpc/client"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type testChatSuite struct {
	BaseGrpcSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestTenantAndLandlordConversation() {
	// Fresh identities so the scenario can run against a long lived server
	tenant := chat.Identity("tenant-" + uuid.NewString()[:8])
	landlord := chat.Identity("landlord-" + uuid.NewString()[:8])
	var chatID chat.ChatID

	s.Run("Step 1: Both sides resolve the same chat", func() {
		s.WithClient("Tenant opens the chat", tenant, func(ctx context.Context, c *client.ChatClient) {
			ch, err := c.FindOrCreateChat(ctx, tenant, landlord)
			s.Require().NoError(err)
			chatID = ch.ID
		})
		s.WithClient("Landlord opens the chat", landlord, func(ctx context.Context, c *client.ChatClient) {
			ch, err := c.FindOrCreateChat(ctx, landlord, tenant)
			s.Require().NoError(err)
			s.Require().Equal(chatID, ch.ID, "Chat must not depend on member order")
		})
	})

	s.Run("Step 2: Landlord online receives the tenant message", func() {
		listenCtx, stopListening := context.WithCancel(context.Background())
		defer stopListening()

		events := make(chan *chatapi.ChatEvent, 16)
		listenerDone := make(chan struct{})
		go func() {
			defer close(listenerDone)
			conn := s.GrpcConn(s.T(), "Landlord listens", s.Config.ServerAddr)
			defer conn.Close()
			c := client.NewChatClient(chatapi.NewChatServiceClient(conn), s.token(landlord))
			_ = c.Listen(listenCtx, landlord, func(evt *chatapi.ChatEvent) { events <- evt })
		}()

		s.WithClient("Tenant waits for the landlord presence", tenant, func(ctx context.Context, c *client.ChatClient) {
			s.Require().Eventually(func() bool {
				_, online, err := c.CounterpartOnline(ctx, chatID, tenant)
				return err == nil && online
			}, 5*time.Second, 50*time.Millisecond)

			msg, err := c.Send(ctx, chatID, tenant, "Is the flat still available?")
			s.Require().NoError(err)
			s.Require().Equal(landlord, msg.ReceiverID)
		})

		deadline := time.After(5 * time.Second)
		for {
			select {
			case evt := <-events:
				if evt.Deliver == nil {
					continue
				}
				s.Require().Equal("Is the flat still available?", evt.Deliver.Text)
				s.Require().Equal(string(tenant), evt.Deliver.SenderID)
				stopListening()
				<-listenerDone
				return
			case <-deadline:
				s.FailNow("Landlord never received the message")
			}
		}
	})

	s.Run("Step 3: History keeps the message after delivery", func() {
		s.WithClient("Landlord reads history", landlord, func(ctx context.Context, c *client.ChatClient) {
			messages, err := c.History(ctx, chatID)
			s.Require().NoError(err)
			s.Require().Len(messages, 1)
			s.Require().NotZero(messages[0].Seq)
		})
	})

	s.Run("Step 4: Outsider cannot write into the chat", func() {
		outsider := chat.Identity("outsider-" + uuid.NewString()[:8])
		s.WithClient("Outsider tries to send", outsider, func(ctx context.Context, c *client.ChatClient) {
			_, err := c.Send(ctx, chatID, outsider, "hello")
			s.Require().Error(err)
			s.Require().Equal(codes.PermissionDenied, status.Code(err))
		})
	})
}
