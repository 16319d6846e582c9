package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"housing-chat/contract"
	"housing-chat/domain/chat"
	"housing-chat/errors"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const defaultCreateAttempts = 3

type IChatDirectory interface {
	FindOrCreate(ctx context.Context, cmd chat.FindOrCreateCommand) (chat.Chat, error)
	ListForUser(ctx context.Context, identity chat.Identity) ([]chat.Chat, error)
	GetChat(ctx context.Context, id chat.ChatID) (chat.Chat, error)
}

// ChatDirectory resolves a pair of identities to its unique chat.
//
// Concurrent callers for the same pair inside this process share one lookup.
// Callers racing from elsewhere are settled by the store: the loser of a
// CreateChat gets ErrChatConflict and re-reads the winner's chat.
type ChatDirectory struct {
	store       contract.MessageStore
	log         *slog.Logger
	group       singleflight.Group
	maxAttempts int
	now         func() time.Time
}

func NewChatDirectory(store contract.MessageStore, log *slog.Logger, maxAttempts int) *ChatDirectory {
	if maxAttempts <= 0 {
		maxAttempts = defaultCreateAttempts
	}
	return &ChatDirectory{store: store, log: log, maxAttempts: maxAttempts, now: time.Now}
}

func (d *ChatDirectory) FindOrCreate(ctx context.Context, cmd chat.FindOrCreateCommand) (chat.Chat, error) {
	if err := chat.ValidateCommand(cmd); err != nil {
		return chat.Chat{}, err
	}
	pair, err := chat.NewPair(cmd.MemberA, cmd.MemberB)
	if err != nil {
		return chat.Chat{}, err
	}

	v, err, shared := d.group.Do(pair.Key(), func() (any, error) {
		return d.findOrCreate(ctx, pair)
	})
	if err != nil {
		return chat.Chat{}, err
	}
	if shared {
		d.log.Debug("Chat lookup shared between callers", "members", pair)
	}
	return v.(chat.Chat), nil
}

func (d *ChatDirectory) findOrCreate(ctx context.Context, pair chat.Pair) (chat.Chat, error) {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		existing, err := d.store.GetChatByPair(ctx, pair)
		if err == nil {
			return existing, nil
		}
		if !goerrors.Is(err, errors.ErrNotFound) {
			return chat.Chat{}, err
		}

		created, err := d.store.CreateChat(ctx, chat.Chat{
			ID:        chat.ChatID(uuid.NewString()),
			Members:   pair,
			CreatedAt: d.now().UTC(),
		})
		switch {
		case err == nil:
			d.log.Info("Chat created", "chat_id", created.ID, "members", pair)
			return created, nil
		case goerrors.Is(err, errors.ErrChatConflict):
			d.log.Debug("Chat created concurrently, fetching it again", "members", pair, "attempt", attempt)
		default:
			return chat.Chat{}, err
		}
	}
	return chat.Chat{}, fmt.Errorf("%w: chat for %v still contended after %d attempts",
		errors.ErrPersistence, pair, d.maxAttempts)
}

// ListForUser returns every chat identity belongs to, newest first.
func (d *ChatDirectory) ListForUser(ctx context.Context, identity chat.Identity) ([]chat.Chat, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	chats, err := d.store.ListChatsForMember(ctx, identity)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	return chats, nil
}

func (d *ChatDirectory) GetChat(ctx context.Context, id chat.ChatID) (chat.Chat, error) {
	if id == "" {
		return chat.Chat{}, fmt.Errorf("%w: chat id is empty", errors.ErrValidation)
	}
	c, err := d.store.GetChat(ctx, id)
	if goerrors.Is(err, errors.ErrNotFound) {
		return chat.Chat{}, fmt.Errorf("%w: %s", errors.ErrUnknownChat, id)
	}
	return c, err
}
