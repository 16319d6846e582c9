package storage

import (
	"context"
	"fmt"
	"log/slog"

	"housing-chat/domain/chat"
	"housing-chat/domain/search"

	"github.com/blugelabs/bluge"
)

const (
	fieldChatID = "chat_id"
	fieldText   = "text"
	fieldSender = "sender_id"
	// bluge stores the document identifier under this field name
	fieldID = "_id"

	defaultSearchLimit = 20
)

// SearchIndex is a full-text index of message bodies, one bluge document per message.
// The store stays the source of truth: hits are message ids only.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// IndexBatch adds or replaces the documents of messages in one bluge batch.
func (s *SearchIndex) IndexBatch(_ context.Context, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := bluge.NewBatch()
	for _, m := range messages {
		doc := bluge.NewDocument(string(m.ID)).
			AddField(bluge.NewKeywordField(fieldChatID, string(m.ChatID))).
			AddField(bluge.NewKeywordField(fieldSender, string(m.SenderID)).StoreValue()).
			AddField(bluge.NewTextField(fieldText, m.Text))
		batch.Update(doc.ID(), doc)
	}
	if err := s.writer.Batch(batch); err != nil {
		return fmt.Errorf("index %d messages: %w", len(messages), err)
	}
	return nil
}

// Search returns the ids of the best matching messages of one chat.
// query accepts a --from filter on the sender, see search.ParseQuery.
func (s *SearchIndex) Search(ctx context.Context, chatID chat.ChatID, query string, limit int) ([]chat.MessageID, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	parsed := search.ParseQuery(query)
	if parsed.IsEmpty() {
		return nil, nil
	}
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open search reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(chatID)).SetField(fieldChatID))
	if parsed.Terms != "" {
		q.AddMust(bluge.NewMatchQuery(parsed.Terms).SetField(fieldText))
	}
	if parsed.Sender != "" {
		q.AddMust(bluge.NewTermQuery(parsed.Sender).SetField(fieldSender))
	}

	dmi, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search chat %s: %w", chatID, err)
	}

	var ids []chat.MessageID
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldID {
				ids = append(ids, chat.MessageID(value))
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	s.log.Debug("Search done", "chat_id", chatID, "hits", len(ids))
	return ids, nil
}
