package storage

import (
	"context"
	"database/sql"
	goerrors "errors"
	"fmt"
	"log/slog"

	"housing-chat/domain/chat"
	"housing-chat/errors"
	"housing-chat/infrastructure/storage/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DBTX is the subset of database/sql used by the postgres store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the relational MessageStore.
// Pair uniqueness is enforced by the chats_pair_idx unique index,
// message order by the messages.seq identity column.
type PostgresStore struct {
	db  DBTX
	log *slog.Logger
}

func NewPostgresStore(db DBTX, log *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// OpenPostgres connects through the pgx stdlib driver and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", errors.ErrPersistence, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", errors.ErrPersistence, err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %w", errors.ErrPersistence, err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// CreateChat inserts the chat unless its pair already exists.
// ON CONFLICT DO NOTHING returns no row for the loser of a race.
func (s *PostgresStore) CreateChat(ctx context.Context, c chat.Chat) (chat.Chat, error) {
	query :=
		`INSERT INTO chats (id, member_a, member_b, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (member_a, member_b) DO NOTHING
		 RETURNING id`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		string(c.ID), string(c.Members[0]), string(c.Members[1]), c.CreatedAt).Scan(&id)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			s.log.Debug("Chat pair created concurrently", "pair", c.Members)
			return chat.Chat{}, errors.ErrChatConflict
		}
		return chat.Chat{}, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	return c, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id chat.ChatID) (chat.Chat, error) {
	query :=
		`SELECT id, member_a, member_b, created_at FROM chats
		 WHERE id = $1`

	return scanChat(s.db.QueryRowContext(ctx, query, string(id)))
}

func (s *PostgresStore) GetChatByPair(ctx context.Context, pair chat.Pair) (chat.Chat, error) {
	query :=
		`SELECT id, member_a, member_b, created_at FROM chats
		 WHERE member_a = $1 AND member_b = $2`

	return scanChat(s.db.QueryRowContext(ctx, query, string(pair[0]), string(pair[1])))
}

// ListChatsForMember returns the chats of identity, newest first.
func (s *PostgresStore) ListChatsForMember(ctx context.Context, identity chat.Identity) ([]chat.Chat, error) {
	query :=
		`SELECT id, member_a, member_b, created_at FROM chats
		 WHERE member_a = $1 OR member_b = $1
		 ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, string(identity))
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		var (
			id, a, b string
			c        chat.Chat
		)
		if err := rows.Scan(&id, &a, &b, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
		}
		c.ID = chat.ChatID(id)
		c.Members = chat.Pair{chat.Identity(a), chat.Identity(b)}
		c.CreatedAt = c.CreatedAt.UTC()
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	return chats, nil
}

// AppendMessage lets the database assign seq and created_at.
// Writers of one chat are serialized by an advisory lock, so a later seq
// never gets an earlier created_at.
func (s *PostgresStore) AppendMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	lock := `SELECT pg_advisory_xact_lock(hashtext($1))`
	query :=
		`INSERT INTO messages (id, chat_id, sender_id, receiver_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, GREATEST(
		     clock_timestamp(),
		     (SELECT max(created_at) + interval '1 microsecond' FROM messages WHERE chat_id = $2)))
		 RETURNING seq, created_at`

	var seq int64
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, lock, string(m.ChatID)); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, query,
			string(m.ID), string(m.ChatID), string(m.SenderID), string(m.ReceiverID), m.Text).
			Scan(&seq, &m.CreatedAt)
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	m.Seq = uint64(seq)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// withTx runs fn in a transaction, committed on success and rolled back on error.
// A store already built on a transaction runs fn on it directly.
func (s *PostgresStore) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	db, ok := s.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	})
	if !ok {
		return fn(ctx, s.db)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(ctx, tx)
}

func (s *PostgresStore) GetMessage(ctx context.Context, chatID chat.ChatID, id chat.MessageID) (chat.Message, error) {
	query :=
		`SELECT id, chat_id, sender_id, receiver_id, text, seq, created_at FROM messages
		 WHERE chat_id = $1 AND id = $2`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, string(chatID), string(id)))
	if goerrors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, errors.ErrNotFound
	}
	return m, err
}

// ListMessages returns the messages of a chat ordered by seq.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID chat.ChatID) ([]chat.Message, error) {
	query :=
		`SELECT id, chat_id, sender_id, receiver_id, text, seq, created_at FROM messages
		 WHERE chat_id = $1
		 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, string(chatID))
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	return messages, nil
}

func scanChat(row *sql.Row) (chat.Chat, error) {
	var (
		id, a, b string
		c        chat.Chat
	)
	if err := row.Scan(&id, &a, &b, &c.CreatedAt); err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return chat.Chat{}, errors.ErrNotFound
		}
		return chat.Chat{}, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	c.ID = chat.ChatID(id)
	c.Members = chat.Pair{chat.Identity(a), chat.Identity(b)}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage leaves sql.ErrNoRows unwrapped so callers can map it.
func scanMessage(row rowScanner) (chat.Message, error) {
	var (
		id, chatID, sender, receiver string
		seq                          int64
		m                            chat.Message
	)
	if err := row.Scan(&id, &chatID, &sender, &receiver, &m.Text, &seq, &m.CreatedAt); err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, err
		}
		return chat.Message{}, fmt.Errorf("%w: db error: %w", errors.ErrPersistence, err)
	}
	m.ID = chat.MessageID(id)
	m.ChatID = chat.ChatID(chatID)
	m.SenderID = chat.Identity(sender)
	m.ReceiverID = chat.Identity(receiver)
	m.Seq = uint64(seq)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
