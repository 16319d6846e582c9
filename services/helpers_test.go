package services

import (
	"io"
	"log/slog"
	"testing"

	"housing-chat/infrastructure/storage"
	"housing-chat/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testStack struct {
	store     *storage.BadgerStore
	presence  *runtime.Presence
	directory *ChatDirectory
	router    *MessageRouter
}

// newTestStack wires the directory and router over an in-memory Badger store.
func newTestStack(t *testing.T) testStack {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	store, err := storage.NewBadgerStore(db, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})

	presence := runtime.NewPresence(discardLogger())
	directory := NewChatDirectory(store, discardLogger(), 3)
	router := NewMessageRouter(directory, store, presence, discardLogger(), 1000)
	return testStack{store: store, presence: presence, directory: directory, router: router}
}
