package storage

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"housing-chat/codec"
	"housing-chat/domain/chat"
	"housing-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	chatPrefix      = "chat:"
	pairPrefix      = "pair:"
	memberPrefix    = "member:"
	messagePrefix   = "msg:"
	messageIDPrefix = "msgid:"
	sequenceKey     = "seq:messages"
	sequenceLease   = 256
)

// BadgerStore is the embedded MessageStore.
//
// Layout:
//
//	chat:{chat_id}                                  -> chat record
//	pair:{member_a}\x00{member_b}                   -> chat_id (uniqueness index)
//	member:{identity}\x00{created_at}:{chat_id}     -> chat_id
//	msg:{chat_id}:{seq}                             -> message record
//	msgid:{chat_id}:{message_id}                    -> msg key
//
// Timestamps and sequences are zero padded so lexicographic order is chronological.
type BadgerStore struct {
	db    *badger.DB
	log   *slog.Logger
	seq   *badger.Sequence
	clock *monotonicClock
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLease)
	if err != nil {
		return nil, fmt.Errorf("%w: message sequence: %w", errors.ErrPersistence, err)
	}
	return &BadgerStore{db: db, log: log, seq: seq, clock: newMonotonicClock(time.Now)}, nil
}

// Close releases the unused part of the sequence lease. The DB itself is owned by the caller.
func (s *BadgerStore) Close() error {
	return s.seq.Release()
}

// CreateChat writes the chat and its indexes in one transaction.
// Reading the pair key inside the transaction makes Badger's conflict
// detection reject the second of two concurrent creations of the same pair.
func (s *BadgerStore) CreateChat(_ context.Context, c chat.Chat) (chat.Chat, error) {
	value, err := codec.Marshal(fromChat(c))
	if err != nil {
		return chat.Chat{}, fmt.Errorf("%w: encode chat: %w", errors.ErrPersistence, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(pairKey(c.Members))
		if err == nil {
			return errors.ErrChatConflict
		}
		if !goerrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entries := map[string][]byte{
			chatKey(c.ID):              value,
			string(pairKey(c.Members)): []byte(c.ID),
			memberKey(c.Members[0], c): []byte(c.ID),
			memberKey(c.Members[1], c): []byte(c.ID),
		}
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return c, nil
	case goerrors.Is(err, errors.ErrChatConflict), goerrors.Is(err, badger.ErrConflict):
		s.log.Debug("Chat pair created concurrently", "pair", c.Members)
		return chat.Chat{}, errors.ErrChatConflict
	default:
		return chat.Chat{}, fmt.Errorf("%w: create chat: %w", errors.ErrPersistence, err)
	}
}

func (s *BadgerStore) GetChat(_ context.Context, id chat.ChatID) (chat.Chat, error) {
	var c chat.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = readChat(txn, id)
		return err
	})
	return c, mapReadError(err, "get chat")
}

func (s *BadgerStore) GetChatByPair(_ context.Context, pair chat.Pair) (chat.Chat, error) {
	var c chat.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(pair))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		c, err = readChat(txn, chat.ChatID(id))
		return err
	})
	return c, mapReadError(err, "get chat by pair")
}

// ListChatsForMember returns the chats of identity, newest first.
func (s *BadgerStore) ListChatsForMember(_ context.Context, identity chat.Identity) ([]chat.Chat, error) {
	var chats []chat.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(memberPrefix + string(identity) + "\x00")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			c, err := readChat(txn, chat.ChatID(id))
			if err != nil {
				return err
			}
			chats = append(chats, c)
		}
		return nil
	})
	if err != nil {
		return nil, mapReadError(err, "list chats")
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// AppendMessage assigns seq and createdAt, then stores the message and its id index.
func (s *BadgerStore) AppendMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	seq, at, err := s.clock.stamp(s.seq.Next)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: next sequence: %w", errors.ErrPersistence, err)
	}
	// Badger sequences start at zero.
	m.Seq = seq + 1
	m.CreatedAt = at

	value, err := codec.Marshal(fromMessage(m))
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: encode message: %w", errors.ErrPersistence, err)
	}
	key := messageKey(m.ChatID, m.Seq)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(messageIDKey(m.ChatID, m.ID), key)
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: append message: %w", errors.ErrPersistence, err)
	}
	return m, nil
}

func (s *BadgerStore) GetMessage(_ context.Context, chatID chat.ChatID, id chat.MessageID) (chat.Message, error) {
	var m chat.Message
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(chatID, id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var d diskMessage
			if err := codec.Unmarshal(v, &d); err != nil {
				return err
			}
			m = toMessage(d)
			return nil
		})
	})
	return m, mapReadError(err, "get message")
}

// ListMessages scans msg:{chat_id}: in key order, which is ascending seq.
func (s *BadgerStore) ListMessages(_ context.Context, chatID chat.ChatID) ([]chat.Message, error) {
	var records []diskMessage
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + string(chatID) + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var d diskMessage
				if err := codec.Unmarshal(v, &d); err != nil {
					return err
				}
				records = append(records, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", errors.ErrPersistence, err)
	}
	return lo.Map(records, func(d diskMessage, _ int) chat.Message { return toMessage(d) }), nil
}

func readChat(txn *badger.Txn, id chat.ChatID) (chat.Chat, error) {
	item, err := txn.Get([]byte(chatKey(id)))
	if err != nil {
		return chat.Chat{}, err
	}
	var d diskChat
	err = item.Value(func(v []byte) error {
		return codec.Unmarshal(v, &d)
	})
	return toChat(d), err
}

func mapReadError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrNotFound
	default:
		return fmt.Errorf("%w: %s: %w", errors.ErrPersistence, op, err)
	}
}

func chatKey(id chat.ChatID) string {
	return chatPrefix + string(id)
}

func pairKey(p chat.Pair) []byte {
	return []byte(pairPrefix + p.Key())
}

func memberKey(identity chat.Identity, c chat.Chat) string {
	return fmt.Sprintf("%s%s\x00%019d:%s", memberPrefix, identity, c.CreatedAt.UnixNano(), c.ID)
}

func messageKey(chatID chat.ChatID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messagePrefix, chatID, seq))
}

func messageIDKey(chatID chat.ChatID, id chat.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", messageIDPrefix, chatID, id))
}
