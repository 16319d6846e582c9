package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/errors"
	"housing-chat/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatDirectory_FindOrCreate_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()

	// Given a chat created from alice's side
	first, err := stack.directory.FindOrCreate(ctx, chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "bob@x.com"})
	req.NoError(err)

	// When bob looks it up with the members swapped
	second, err := stack.directory.FindOrCreate(ctx, chat.FindOrCreateCommand{MemberA: "bob@x.com", MemberB: "alice@x.com"})
	req.NoError(err)

	// Then both get the same chat
	req.Equal(first.ID, second.ID)
	req.Equal(chat.Pair{"alice@x.com", "bob@x.com"}, second.Members)
}

func TestChatDirectory_FindOrCreate_Concurrent(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()

	const callers = 25
	ids := make([]chat.ChatID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "bob@x.com"}
			if i%2 == 1 {
				cmd = chat.FindOrCreateCommand{MemberA: "bob@x.com", MemberB: "alice@x.com"}
			}
			c, err := stack.directory.FindOrCreate(ctx, cmd)
			ids[i], errs[i] = c.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		req.NoError(errs[i])
		req.Equal(ids[0], ids[i])
	}
	chats, err := stack.directory.ListForUser(ctx, "alice@x.com")
	req.NoError(err)
	req.Len(chats, 1)
}

func TestChatDirectory_FindOrCreate_Validation(t *testing.T) {
	stack := newTestStack(t)
	tests := []struct {
		name string
		cmd  chat.FindOrCreateCommand
	}{
		{name: "missing member", cmd: chat.FindOrCreateCommand{MemberA: "alice@x.com"}},
		{name: "same member twice", cmd: chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "alice@x.com"}},
		{name: "blank member", cmd: chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stack.directory.FindOrCreate(context.Background(), tt.cmd)
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestChatDirectory_FindOrCreate_ConflictRefetches(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	directory := NewChatDirectory(store, discardLogger(), 3)

	pair := chat.Pair{"alice@x.com", "bob@x.com"}
	winner := chat.Chat{ID: "winner", Members: pair}

	// Given another process creating the pair between our lookup and our insert
	gomock.InOrder(
		store.EXPECT().GetChatByPair(gomock.Any(), pair).Return(chat.Chat{}, errors.ErrNotFound),
		store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).Return(chat.Chat{}, errors.ErrChatConflict),
		store.EXPECT().GetChatByPair(gomock.Any(), pair).Return(winner, nil),
	)

	// When the directory resolves the pair
	got, err := directory.FindOrCreate(context.Background(), chat.FindOrCreateCommand{MemberA: "bob@x.com", MemberB: "alice@x.com"})

	// Then our candidate is discarded in favour of the stored chat
	req.NoError(err)
	req.Equal(winner, got)
}

func TestChatDirectory_FindOrCreate_GivesUpAfterAttempts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	directory := NewChatDirectory(store, discardLogger(), 2)

	store.EXPECT().GetChatByPair(gomock.Any(), gomock.Any()).Return(chat.Chat{}, errors.ErrNotFound).Times(2)
	store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).Return(chat.Chat{}, errors.ErrChatConflict).Times(2)

	_, err := directory.FindOrCreate(context.Background(), chat.FindOrCreateCommand{MemberA: "a", MemberB: "b"})
	req.ErrorIs(err, errors.ErrPersistence)
}

func TestChatDirectory_FindOrCreate_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockMessageStore(ctrl)
	directory := NewChatDirectory(store, discardLogger(), 3)

	store.EXPECT().GetChatByPair(gomock.Any(), gomock.Any()).Return(chat.Chat{}, errors.ErrPersistence)
	store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).Times(0)

	_, err := directory.FindOrCreate(context.Background(), chat.FindOrCreateCommand{MemberA: "a", MemberB: "b"})
	require.ErrorIs(t, err, errors.ErrPersistence)
}

func TestChatDirectory_ListForUser(t *testing.T) {
	req := require.New(t)
	stack := newTestStack(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stack.directory.now = func() time.Time {
		at = at.Add(time.Minute)
		return at
	}

	// Given no chat yet, the list is empty, not nil
	chats, err := stack.directory.ListForUser(ctx, "carol@x.com")
	req.NoError(err)
	req.NotNil(chats)
	req.Empty(chats)

	first, err := stack.directory.FindOrCreate(ctx, chat.FindOrCreateCommand{MemberA: "carol@x.com", MemberB: "dan@x.com"})
	req.NoError(err)
	second, err := stack.directory.FindOrCreate(ctx, chat.FindOrCreateCommand{MemberA: "erin@x.com", MemberB: "carol@x.com"})
	req.NoError(err)

	// Then carol sees both, newest first
	chats, err = stack.directory.ListForUser(ctx, "carol@x.com")
	req.NoError(err)
	req.Len(chats, 2)
	req.Equal(second.ID, chats[0].ID)
	req.Equal(first.ID, chats[1].ID)

	_, err = stack.directory.ListForUser(ctx, "")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatDirectory_GetChat_Unknown(t *testing.T) {
	stack := newTestStack(t)
	_, err := stack.directory.GetChat(context.Background(), "nope")
	require.ErrorIs(t, err, errors.ErrUnknownChat)
}
