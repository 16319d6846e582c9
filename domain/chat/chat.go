// Package chat contains the core concepts of the messaging subsystem.
// Chats and messages are append-only: nothing here mutates a stored record.
// No runtime, network, or storage logic should be added here.
package chat

import (
	"fmt"
	"strings"
	"time"

	"housing-chat/errors"
)

// maxIdentityLength matches the longest valid email address.
const maxIdentityLength = 320

// Identity is the stable identifier handed over by the identity provider (e.g. an email).
type Identity string

// ConnectionID names one live transport session.
type ConnectionID string

type ChatID string

// Validate rejects identities the stores cannot key on.
func (i Identity) Validate() error {
	switch {
	case strings.TrimSpace(string(i)) == "":
		return fmt.Errorf("%w: identity is empty", errors.ErrValidation)
	case len(i) > maxIdentityLength:
		return fmt.Errorf("%w: identity longer than %d bytes", errors.ErrValidation, maxIdentityLength)
	case strings.ContainsRune(string(i), 0):
		return fmt.Errorf("%w: identity contains NUL", errors.ErrValidation)
	}
	return nil
}

// Pair is the normalized, unordered set of the two chat members.
// Members are kept sorted so that Pair{a, b} and Pair{b, a} never coexist.
type Pair [2]Identity

// NewPair normalizes two identities into a Pair.
// Both must be valid and distinct.
func NewPair(a, b Identity) (Pair, error) {
	if err := a.Validate(); err != nil {
		return Pair{}, err
	}
	if err := b.Validate(); err != nil {
		return Pair{}, err
	}
	if a == b {
		return Pair{}, fmt.Errorf("%w: a chat needs two distinct members", errors.ErrValidation)
	}
	if b < a {
		a, b = b, a
	}
	return Pair{a, b}, nil
}

// Key is the order-independent uniqueness key of the pair.
func (p Pair) Key() string {
	return string(p[0]) + "\x00" + string(p[1])
}

func (p Pair) Has(id Identity) bool {
	return p[0] == id || p[1] == id
}

// Other returns the counterpart of id, false when id is not a member.
func (p Pair) Other(id Identity) (Identity, bool) {
	switch id {
	case p[0]:
		return p[1], true
	case p[1]:
		return p[0], true
	}
	return "", false
}

// Chat is a durable two-party conversation. At most one exists per Pair.
type Chat struct {
	ID        ChatID
	Members   Pair
	CreatedAt time.Time
}
