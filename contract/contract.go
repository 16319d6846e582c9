//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"housing-chat/domain/chat"
	"housing-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events for one consumer.
// Consume is called while the presence registry holds its lock: it must enqueue and return, never block.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// MessageStore is the durable, append-only record of chats and messages.
// CreateChat returns errors.ErrChatConflict when the pair already exists,
// lookups return errors.ErrNotFound, everything else wraps errors.ErrPersistence.
type MessageStore interface {
	CreateChat(ctx context.Context, c chat.Chat) (chat.Chat, error)
	GetChat(ctx context.Context, id chat.ChatID) (chat.Chat, error)
	GetChatByPair(ctx context.Context, pair chat.Pair) (chat.Chat, error)
	ListChatsForMember(ctx context.Context, identity chat.Identity) ([]chat.Chat, error)
	AppendMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	GetMessage(ctx context.Context, chatID chat.ChatID, id chat.MessageID) (chat.Message, error)
	ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error)
}

// IPresence tracks which identities hold at least one live connection.
type IPresence interface {
	Connect(identity chat.Identity, conn chat.ConnectionID, sink EventSink) bool
	Disconnect(conn chat.ConnectionID) bool
	Snapshot() []chat.Identity
	IsOnline(identity chat.Identity) bool
	SinksFor(identity chat.Identity) []EventSink
}

// MessageIndex answers full-text queries inside one chat.
type MessageIndex interface {
	IndexBatch(ctx context.Context, messages []chat.Message) error
	Search(ctx context.Context, chatID chat.ChatID, query string, limit int) ([]chat.MessageID, error)
}

// Censor rewrites forbidden words before a message is persisted.
type Censor interface {
	Censor(text string) (string, []string)
}
