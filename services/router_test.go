package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"
	"housing-chat/mocks"
	"housing-chat/sink"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newChat(t *testing.T, stack testStack, a, b chat.Identity) chat.Chat {
	c, err := stack.directory.FindOrCreate(context.Background(), chat.FindOrCreateCommand{MemberA: a, MemberB: b})
	require.NoError(t, err)
	return c
}

// drain returns the messages delivered to a connection, skipping presence updates.
func drain(s *sink.ConnectionSink) []chat.Message {
	var delivered []chat.Message
	for {
		select {
		case e := <-s.Events:
			if d, ok := e.(event.MessageDelivered); ok {
				delivered = append(delivered, d.Message)
			}
		default:
			return delivered
		}
	}
}

func TestMessageRouter_Submit_ReceiverOffline(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	// Given bob is offline
	msg, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "hello"})
	req.NoError(err)
	req.Equal(chat.Identity("bob@x.com"), msg.ReceiverID)
	req.NotEmpty(msg.ID)

	// When bob connects later
	bob := sink.NewConnectionSink("bob-1", 8)
	stack.presence.Connect("bob@x.com", bob.ID, bob)

	// Then nothing was pushed to him, but the history holds the message
	req.Empty(drain(bob))
	history, err := stack.router.ListMessages(ctx, c.ID)
	req.NoError(err)
	req.Equal([]chat.Message{msg}, history)
}

func TestMessageRouter_Submit_NonMember(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	_, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "mallory@x.com", Text: "hi"})
	req.ErrorIs(err, errors.ErrNotMember)

	history, err := stack.router.ListMessages(ctx, c.ID)
	req.NoError(err)
	req.Empty(history)
}

func TestMessageRouter_Submit_Validation(t *testing.T) {
	stack := newTestStack(t)
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	tests := []struct {
		name    string
		cmd     chat.SubmitMessageCommand
		wantErr error
	}{
		{name: "empty text", cmd: chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: ""}, wantErr: errors.ErrEmptyText},
		{name: "blank text", cmd: chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: " \n\t"}, wantErr: errors.ErrEmptyText},
		{name: "missing sender", cmd: chat.SubmitMessageCommand{ChatID: c.ID, Text: "hi"}, wantErr: errors.ErrValidation},
		{name: "unknown chat", cmd: chat.SubmitMessageCommand{ChatID: "nope", SenderID: "alice@x.com", Text: "hi"}, wantErr: errors.ErrUnknownChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stack.router.Submit(context.Background(), tt.cmd)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMessageRouter_Submit_TooLong(t *testing.T) {
	stack := newTestStack(t)
	c := newChat(t, stack, "alice@x.com", "bob@x.com")
	stack.router.maxTextLength = 5

	_, err := stack.router.Submit(context.Background(), chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "too long"})
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestMessageRouter_Submit_ConcurrentSameChat(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	const senders = 10
	var wg sync.WaitGroup
	ids := make(chan chat.MessageID, senders*2)
	for i := 0; i < senders; i++ {
		for _, sender := range []chat.Identity{"alice@x.com", "bob@x.com"} {
			wg.Add(1)
			go func(sender chat.Identity) {
				defer wg.Done()
				msg, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c.ID, SenderID: sender, Text: "ping"})
				if err == nil {
					ids <- msg.ID
				}
			}(sender)
		}
	}
	wg.Wait()
	close(ids)

	submitted := make(map[chat.MessageID]bool)
	for id := range ids {
		submitted[id] = true
	}
	req.Len(submitted, senders*2)

	// Every message is there exactly once, in store order
	history, err := stack.router.ListMessages(ctx, c.ID)
	req.NoError(err)
	req.Len(history, senders*2)
	for i, msg := range history {
		req.True(submitted[msg.ID])
		if i > 0 {
			req.Greater(msg.Seq, history[i-1].Seq)
			req.False(msg.CreatedAt.Before(history[i-1].CreatedAt))
		}
	}
}

func TestMessageRouter_EndToEnd(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()

	c1 := newChat(t, stack, "alice@x.com", "bob@x.com")
	m1, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c1.ID, SenderID: "alice@x.com", Text: "hi bob"})
	req.NoError(err)

	// Given bob connects
	bob := sink.NewConnectionSink("bob-1", 8)
	stack.presence.Connect("bob@x.com", bob.ID, bob)
	req.Contains(stack.presence.Snapshot(), chat.Identity("bob@x.com"))

	// When alice sends a second message
	m2, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c1.ID, SenderID: "alice@x.com", Text: "how are you"})
	req.NoError(err)

	// Then bob receives exactly the persisted record
	req.Equal([]chat.Message{m2}, drain(bob))
	history, err := stack.router.ListMessages(ctx, c1.ID)
	req.NoError(err)
	req.Equal([]chat.Message{m1, m2}, history)

	// And alice sees bob online
	other, online, err := stack.router.CounterpartOnline(ctx, c1.ID, "alice@x.com")
	req.NoError(err)
	req.Equal(chat.Identity("bob@x.com"), other)
	req.True(online)
}

func TestMessageRouter_Submit_DeliversToEveryConnection(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	phone := sink.NewConnectionSink("bob-phone", 8)
	laptop := sink.NewConnectionSink("bob-laptop", 8)
	// A full buffer only loses its own push
	full := sink.NewConnectionSink("bob-full", 0)
	stack.presence.Connect("bob@x.com", phone.ID, phone)
	stack.presence.Connect("bob@x.com", laptop.ID, laptop)
	stack.presence.Connect("bob@x.com", full.ID, full)
	// the sender's own connection gets nothing
	alice := sink.NewConnectionSink("alice-1", 8)
	stack.presence.Connect("alice@x.com", alice.ID, alice)
	drain(phone)
	drain(laptop)

	msg, err := stack.router.Submit(context.Background(), chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "viewing at 6?"})
	req.NoError(err)

	req.Equal([]chat.Message{msg}, drain(phone))
	req.Equal([]chat.Message{msg}, drain(laptop))
	req.Empty(drain(alice))
}

func TestMessageRouter_Submit_PersistenceFailureNeverRelays(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockMessageStore(ctrl)
	presence := mocks.NewMockIPresence(ctrl)
	c := chat.Chat{ID: "c1", Members: chat.Pair{"alice@x.com", "bob@x.com"}}
	events := make(chan event.DomainEvent, 1)
	router := NewMessageRouter(NewChatDirectory(store, discardLogger(), 1), store, presence, discardLogger(), 100).
		WithEvents(events)

	store.EXPECT().GetChat(gomock.Any(), c.ID).Return(c, nil)
	store.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(chat.Message{}, errors.ErrPersistence)
	presence.EXPECT().SinksFor(gomock.Any()).Times(0)

	_, err := router.Submit(context.Background(), chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "hi"})
	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(events)
}

func TestMessageRouter_Submit_CensorsAndPublishes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	stack := newTestStack(t)
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	censor := mocks.NewMockCensor(ctrl)
	censor.EXPECT().Censor("pay by western union").Return("pay by ******* *****", []string{"western union"})
	events := make(chan event.DomainEvent, 1)
	stack.router.WithCensor(censor).WithEvents(events)

	msg, err := stack.router.Submit(context.Background(), chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "pay by western union"})
	req.NoError(err)
	req.Equal("pay by ******* *****", msg.Text)

	select {
	case e := <-events:
		req.Equal(event.MessageStored{Message: msg, Censored: []string{"western union"}}, e)
	default:
		req.Fail("stored message was not published")
	}
}

func TestMessageRouter_Relay(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")
	msg, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "still available?"})
	req.NoError(err)

	bob := sink.NewConnectionSink("bob-1", 8)
	stack.presence.Connect("bob@x.com", bob.ID, bob)

	t.Run("relays the persisted record", func(t *testing.T) {
		got, err := stack.router.Relay(ctx, chat.RelayCommand{ChatID: c.ID, MessageID: msg.ID, SenderID: "alice@x.com"})
		require.NoError(t, err)
		require.Equal(t, msg, got)
		require.Equal(t, []chat.Message{msg}, drain(bob))
	})

	t.Run("rejects an unknown message", func(t *testing.T) {
		_, err := stack.router.Relay(ctx, chat.RelayCommand{ChatID: c.ID, MessageID: "ghost", SenderID: "alice@x.com"})
		require.ErrorIs(t, err, errors.ErrUnknownMessage)
		require.Empty(t, drain(bob))
	})

	t.Run("rejects someone else's message", func(t *testing.T) {
		_, err := stack.router.Relay(ctx, chat.RelayCommand{ChatID: c.ID, MessageID: msg.ID, SenderID: "bob@x.com"})
		require.ErrorIs(t, err, errors.ErrNotMember)
	})

	t.Run("rejects a non member", func(t *testing.T) {
		_, err := stack.router.Relay(ctx, chat.RelayCommand{ChatID: c.ID, MessageID: msg.ID, SenderID: "mallory@x.com"})
		require.ErrorIs(t, err, errors.ErrNotMember)
	})
}

func TestMessageRouter_CounterpartOnline(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	other, online, err := stack.router.CounterpartOnline(ctx, c.ID, "bob@x.com")
	req.NoError(err)
	req.Equal(chat.Identity("alice@x.com"), other)
	req.False(online)

	_, _, err = stack.router.CounterpartOnline(ctx, c.ID, "mallory@x.com")
	req.ErrorIs(err, errors.ErrNotMember)
}

func TestMessageRouter_SearchMessages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	stack := newTestStack(t)
	ctx := context.Background()
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	// Given search disabled
	_, err := stack.router.SearchMessages(ctx, chat.SearchCommand{ChatID: c.ID, Query: "balcony"})
	req.ErrorIs(err, errors.ErrSearchDisabled)

	msg, err := stack.router.Submit(ctx, chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "bob@x.com", Text: "is there a balcony?"})
	req.NoError(err)

	// Given an index returning one known and one stale id
	index := mocks.NewMockMessageIndex(ctrl)
	index.EXPECT().Search(gomock.Any(), c.ID, "balcony", defaultSearchLimit).Return([]chat.MessageID{msg.ID, "stale"}, nil)
	stack.router.WithIndex(index)

	// Then only the stored record comes back
	found, err := stack.router.SearchMessages(ctx, chat.SearchCommand{ChatID: c.ID, Query: "balcony"})
	req.NoError(err)
	req.Equal([]chat.Message{msg}, found)

	_, err = stack.router.SearchMessages(ctx, chat.SearchCommand{ChatID: c.ID, Query: "balcony", Limit: 500})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestMessageRouter_Submit_StampsCreatedAt(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	c := newChat(t, stack, "alice@x.com", "bob@x.com")

	before := time.Now().Add(-time.Second)
	msg, err := stack.router.Submit(context.Background(), chat.SubmitMessageCommand{ChatID: c.ID, SenderID: "alice@x.com", Text: "hi"})
	req.NoError(err)
	req.True(msg.CreatedAt.After(before))
	req.Equal(uint64(1), msg.Seq)
}
