package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"housing-chat/contract"
	"housing-chat/domain/chat"
	"housing-chat/domain/event"
)

type Set map[chat.ConnectionID]struct{}

type connection struct {
	identity chat.Identity
	sink     contract.EventSink
}

// Presence is the in-memory registry of live connections.
// An identity is online while it owns at least one connection.
//
// Every mutation and its presence broadcast happen under one lock, so all
// connections observe snapshots in the same order. Broadcasting only
// enqueues into each connection's buffer: sinks never block, and transport
// writes happen later on the connection's own goroutine.
type Presence struct {
	mu          sync.RWMutex
	log         *slog.Logger
	now         func() time.Time
	connections map[chat.ConnectionID]connection // map connection -> owner and sink
	identities  map[chat.Identity]Set            // map identity to its connections
}

func NewPresence(log *slog.Logger) *Presence {
	return &Presence{
		log:         log,
		now:         time.Now,
		connections: make(map[chat.ConnectionID]connection),
		identities:  make(map[chat.Identity]Set),
	}
}

// Connect registers conn under identity and broadcasts the new snapshot.
// Registering the same connection twice under the same identity is a no-op.
// A connection re-identifying under another identity is moved.
// Returns true when the registry changed.
func (p *Presence) Connect(identity chat.Identity, conn chat.ConnectionID, sink contract.EventSink) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.connections[conn]; ok {
		if current.identity == identity {
			return false
		}
		p.remove(conn, current.identity)
	}

	p.connections[conn] = connection{identity: identity, sink: sink}
	if _, ok := p.identities[identity]; !ok {
		p.identities[identity] = make(Set)
	}
	p.identities[identity][conn] = struct{}{}

	p.log.Debug("Connection registered", "identity", identity, "connection_id", conn)
	p.broadcast()
	return true
}

// Disconnect removes conn. The identity goes offline with its last connection.
// Unknown connections are ignored, so calling it from several cleanup paths is safe.
func (p *Presence) Disconnect(conn chat.ConnectionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.connections[conn]
	if !ok {
		return false
	}
	p.remove(conn, current.identity)

	p.log.Debug("Connection removed", "identity", current.identity, "connection_id", conn)
	p.broadcast()
	return true
}

// Snapshot returns the online identities, sorted.
func (p *Presence) Snapshot() []chat.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot()
}

func (p *Presence) IsOnline(identity chat.Identity) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.identities[identity]
	return ok
}

// SinksFor resolves every live connection of identity.
// Returns nil if the identity is offline.
func (p *Presence) SinksFor(identity chat.Identity) []contract.EventSink {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns, ok := p.identities[identity]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for conn := range conns {
		sinks = append(sinks, p.connections[conn].sink)
	}
	return sinks
}

// Stats returns the number of online identities and live connections.
func (p *Presence) Stats() (identities, connections int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.identities), len(p.connections)
}

// remove must be called with the write lock held.
// It cleans up empty sets so offline identities leave no entry behind.
func (p *Presence) remove(conn chat.ConnectionID, identity chat.Identity) {
	delete(p.connections, conn)
	if conns, ok := p.identities[identity]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(p.identities, identity)
		}
	}
}

func (p *Presence) snapshot() []chat.Identity {
	online := make([]chat.Identity, 0, len(p.identities))
	for identity := range p.identities {
		online = append(online, identity)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })
	return online
}

// broadcast must be called with the write lock held.
// Only a closed connection refuses a snapshot; it is about to be removed anyway.
func (p *Presence) broadcast() {
	evt := event.PresenceChanged{Online: p.snapshot(), At: p.now().UTC()}
	for conn, c := range p.connections {
		if err := c.sink.Consume(context.Background(), evt); err != nil {
			p.log.Debug("Presence update dropped", "connection_id", conn, "error", err)
		}
	}
}
