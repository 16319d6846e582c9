package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"housing-chat/auth"
	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/errors"
	"housing-chat/infrastructure/grpc/chatapi"
	"housing-chat/services"
	"housing-chat/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = 64 * 1024
	writeWait    = 10 * time.Second
)

// Handler upgrades HTTP requests to the event channel.
// Each connection runs a read pump on the request goroutine and a write pump beside it.
type Handler struct {
	log          *slog.Logger
	chatService  services.IChatService
	verifier     *auth.Verifier
	bufferSize   int
	pingInterval time.Duration
	pongTimeout  time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler builds the websocket endpoint. A nil verifier trusts every identify.
func NewHandler(log *slog.Logger, chatService services.IChatService, verifier *auth.Verifier,
	bufferSize int, pingInterval, pongTimeout time.Duration) *Handler {
	return &Handler{
		log:          log,
		chatService:  chatService,
		verifier:     verifier,
		bufferSize:   bufferSize,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers on the marketplace front-end connect cross-origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "error", err)
		return
	}
	c := &client{
		handler: h,
		conn:    conn,
		sink:    sink.NewConnectionSink(chat.ConnectionID(uuid.NewString()), h.bufferSize),
		replies: make(chan Envelope, h.bufferSize),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

type client struct {
	handler  *Handler
	conn     *websocket.Conn
	sink     *sink.ConnectionSink
	replies  chan Envelope
	identity chat.Identity
}

// readPump owns every read and every call into the services.
// Returning unregisters the connection, which broadcasts the new presence.
func (c *client) readPump(ctx context.Context) {
	log := c.handler.log.With("connection_id", c.sink.ID)
	defer func() {
		c.sink.Close()
		c.handler.chatService.Disconnect(c.sink.ID)
		_ = c.conn.Close()
		log.Debug("Connection closed", "identity", c.identity)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Read failed", "error", err)
			}
			return
		}
		// Any frame proves liveness as much as a pong does
		_ = c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
		if err := c.dispatch(ctx, env); err != nil {
			log.Debug("Request rejected", "type", env.Type, "error", err)
			c.reply(TypeError, ErrorPayload{Code: errorCode(err), Message: err.Error()})
		}
	}
}

func (c *client) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case TypeIdentify:
		var p IdentifyPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.identify(p)
	case TypeRelay:
		var p RelayPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		if err := c.actingAs(chat.Identity(p.SenderID)); err != nil {
			return err
		}
		_, err := c.handler.chatService.RelayMessage(ctx, chat.RelayCommand{
			ChatID:    chat.ChatID(p.ChatID),
			MessageID: chat.MessageID(p.ID),
			SenderID:  c.identity,
		})
		return err
	case TypeSend:
		var p SendPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		if err := c.actingAs(c.identity); err != nil {
			return err
		}
		msg, err := c.handler.chatService.SubmitMessage(ctx, chat.SubmitMessageCommand{
			ChatID:   chat.ChatID(p.ChatID),
			SenderID: c.identity,
			Text:     p.Text,
		})
		if err != nil {
			return err
		}
		c.reply(TypeSent, MessagePayload{Message: chatapi.FromMessage(msg)})
		return nil
	default:
		return fmt.Errorf("%w: unknown event type %q", errors.ErrValidation, env.Type)
	}
}

func (c *client) identify(p IdentifyPayload) error {
	identity := chat.Identity(p.Identity)
	if err := identity.Validate(); err != nil {
		return err
	}
	if c.handler.verifier != nil {
		if err := c.handler.verifier.CheckIdentity(p.Token, identity); err != nil {
			return err
		}
	}
	if err := c.handler.chatService.Connect(identity, c.sink.ID, c.sink); err != nil {
		return err
	}
	c.identity = identity
	return nil
}

// actingAs requires an identified connection acting under its own identity.
func (c *client) actingAs(claimed chat.Identity) error {
	if c.identity == "" {
		return fmt.Errorf("%w: identify first", errors.ErrUnauthorized)
	}
	if claimed != c.identity {
		return fmt.Errorf("%w: connection identified as %s", errors.ErrUnauthorized, c.identity)
	}
	return nil
}

// reply queues a direct answer to this connection. Dropped if the client does not read.
func (c *client) reply(kind string, payload any) {
	env, err := newEnvelope(kind, payload)
	if err != nil {
		c.handler.log.Error("Failed to encode reply", "type", kind, "error", err)
		return
	}
	select {
	case c.replies <- env:
	default:
		c.handler.log.Debug("Reply buffer full, reply dropped", "connection_id", c.sink.ID, "type", kind)
	}
}

// writePump is the only writer of the socket: events, replies and pings.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.handler.pingInterval)
	defer func() {
		ticker.Stop()
		// unblocks the read pump when a write failed
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sink.Done():
			return
		case evt := <-c.sink.Presence:
			if !c.push(evt) {
				return
			}
		case evt := <-c.sink.Events:
			if !c.push(evt) {
				return
			}
		case env := <-c.replies:
			if !c.write(env) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push writes a domain event. Events with no wire form are skipped.
func (c *client) push(evt event.DomainEvent) bool {
	env, ok, err := toEnvelope(evt)
	if err != nil {
		c.handler.log.Error("Failed to encode event", "error", err)
		return true
	}
	return !ok || c.write(env)
}

func (c *client) write(env Envelope) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(env); err != nil {
		c.handler.log.Debug("Write failed", "connection_id", c.sink.ID, "error", err)
		return false
	}
	return true
}

func toEnvelope(evt event.DomainEvent) (Envelope, bool, error) {
	out, ok := chatapi.FromEvent(evt)
	if !ok {
		return Envelope{}, false, nil
	}
	var env Envelope
	var err error
	if out.Presence != nil {
		env, err = newEnvelope(TypePresence, PresencePayload{Identities: out.Presence.Identities})
	} else {
		env, err = newEnvelope(TypeDeliver, MessagePayload{Message: *out.Deliver})
	}
	return env, err == nil, err
}

func decode(env Envelope, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", errors.ErrValidation, env.Type, err)
	}
	return nil
}
