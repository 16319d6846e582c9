package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"housing-chat/auth"
	"housing-chat/domain/chat"
	"housing-chat/infrastructure/storage"
	"housing-chat/runtime"
	"housing-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server      *httptest.Server
	chatService *services.ChatService
	presence    *runtime.Presence
}

func newFixture(t *testing.T, verifier *auth.Verifier, pingInterval, pongTimeout time.Duration) fixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	store, err := storage.NewBadgerStore(db, log)
	require.NoError(t, err)

	presence := runtime.NewPresence(log)
	directory := services.NewChatDirectory(store, log, 3)
	router := services.NewMessageRouter(directory, store, presence, log, 1000)
	chatService := services.NewChatService(directory, router, presence)

	server := httptest.NewServer(NewHandler(log, chatService, verifier, 16, pingInterval, pongTimeout))
	t.Cleanup(func() {
		server.Close()
		_ = store.Close()
		_ = db.Close()
	})
	return fixture{server: server, chatService: chatService, presence: presence}
}

func (f fixture) dial(t *testing.T) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	env, err := newEnvelope(kind, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

// expect reads frames until one of the given type arrives.
func expect(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == kind {
			require.NoError(t, json.Unmarshal(env.Payload, payload))
			return
		}
	}
}

func TestHandler_PresenceAndDelivery(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil, time.Second, 5*time.Second)

	c1, err := f.chatService.FindOrCreateChat(t.Context(), chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "bob@x.com"})
	req.NoError(err)

	// Given alice and bob connected
	alice := f.dial(t)
	send(t, alice, TypeIdentify, IdentifyPayload{Identity: "alice@x.com"})
	var presence PresencePayload
	expect(t, alice, TypePresence, &presence)
	req.Equal([]string{"alice@x.com"}, presence.Identities)

	bob := f.dial(t)
	send(t, bob, TypeIdentify, IdentifyPayload{Identity: "bob@x.com"})
	expect(t, bob, TypePresence, &presence)
	req.Equal([]string{"alice@x.com", "bob@x.com"}, presence.Identities)
	expect(t, alice, TypePresence, &presence)
	req.Equal([]string{"alice@x.com", "bob@x.com"}, presence.Identities)

	// When alice sends over the socket
	send(t, alice, TypeSend, SendPayload{ChatID: string(c1.ID), Text: "how are you"})

	// Then alice gets the stored record back and bob gets the same record delivered
	var sent, delivered MessagePayload
	expect(t, alice, TypeSent, &sent)
	expect(t, bob, TypeDeliver, &delivered)
	req.Equal(sent.Message.ID, delivered.Message.ID)
	req.Equal("how are you", delivered.Message.Text)
	req.Equal("bob@x.com", delivered.Message.ReceiverID)

	// When alice relays it again, with a tampered text
	send(t, alice, TypeRelay, RelayPayload{ID: sent.Message.ID, ChatID: string(c1.ID), SenderID: "alice@x.com", Text: "tampered"})
	expect(t, bob, TypeDeliver, &delivered)
	req.Equal("how are you", delivered.Message.Text)

	// When bob leaves, alice is told
	req.NoError(bob.Close())
	expect(t, alice, TypePresence, &presence)
	req.Equal([]string{"alice@x.com"}, presence.Identities)
}

func TestHandler_Errors(t *testing.T) {
	f := newFixture(t, nil, time.Second, 5*time.Second)
	c1, err := f.chatService.FindOrCreateChat(t.Context(), chat.FindOrCreateCommand{MemberA: "alice@x.com", MemberB: "bob@x.com"})
	require.NoError(t, err)
	conn := f.dial(t)

	tests := []struct {
		name    string
		kind    string
		payload any
		want    string
	}{
		{name: "send before identify", kind: TypeSend, payload: SendPayload{ChatID: string(c1.ID), Text: "hi"}, want: CodeForbidden},
		{name: "unknown type", kind: "dance", payload: struct{}{}, want: CodeInvalid},
		{name: "empty identity", kind: TypeIdentify, payload: IdentifyPayload{}, want: CodeInvalid},
		{name: "identify", kind: TypeIdentify, payload: IdentifyPayload{Identity: "mallory@x.com"}},
		{name: "send to a foreign chat", kind: TypeSend, payload: SendPayload{ChatID: string(c1.ID), Text: "hi"}, want: CodeForbidden},
		{name: "send to unknown chat", kind: TypeSend, payload: SendPayload{ChatID: "nope", Text: "hi"}, want: CodeNotFound},
		{name: "relay as someone else", kind: TypeRelay, payload: RelayPayload{ID: "m1", ChatID: string(c1.ID), SenderID: "alice@x.com"}, want: CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.kind, tt.payload)
			if tt.want == "" {
				var presence PresencePayload
				expect(t, conn, TypePresence, &presence)
				return
			}
			var got ErrorPayload
			expect(t, conn, TypeError, &got)
			require.Equal(t, tt.want, got.Code)
		})
	}
}

func TestHandler_IdentityToken(t *testing.T) {
	req := require.New(t)
	verifier := auth.NewVerifier("test-secret")
	f := newFixture(t, verifier, time.Second, 5*time.Second)
	conn := f.dial(t)

	token, err := verifier.GenerateToken("alice@x.com", time.Hour)
	req.NoError(err)

	// Given a token issued for alice, bob cannot use it
	send(t, conn, TypeIdentify, IdentifyPayload{Identity: "bob@x.com", Token: token})
	var got ErrorPayload
	expect(t, conn, TypeError, &got)
	req.Equal(CodeForbidden, got.Code)
	req.False(f.presence.IsOnline("bob@x.com"))

	send(t, conn, TypeIdentify, IdentifyPayload{Identity: "alice@x.com", Token: token})
	var presence PresencePayload
	expect(t, conn, TypePresence, &presence)
	req.Equal([]string{"alice@x.com"}, presence.Identities)
}

func TestHandler_SilentConnectionTimesOut(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil, 20*time.Millisecond, 100*time.Millisecond)

	// Given bob identified and then never reads again, so pings go unanswered
	bob := f.dial(t)
	send(t, bob, TypeIdentify, IdentifyPayload{Identity: "bob@x.com"})
	req.Eventually(func() bool { return f.presence.IsOnline("bob@x.com") }, time.Second, 5*time.Millisecond)

	// Then the server drops him after the pong timeout
	req.Eventually(func() bool { return !f.presence.IsOnline("bob@x.com") }, 2*time.Second, 10*time.Millisecond)
}
