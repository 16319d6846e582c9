package storage

import (
	"fmt"
	"strings"
	"time"

	"housing-chat/codec"

	"github.com/dgraph-io/badger/v4"
)

// Record is a human readable view of one Badger entry, for operator tools.
type Record struct {
	Key    string
	Kind   string
	ID     string
	At     time.Time
	Detail string
}

// DecodeRecord describes a raw entry. Index entries point to other keys and are reported as such.
func DecodeRecord(key string, val []byte) Record {
	rec := Record{Key: strings.ReplaceAll(key, "\x00", "|"), Kind: "RAW", Detail: fmt.Sprintf("Size: %d bytes", len(val))}
	switch {
	case strings.HasPrefix(key, chatPrefix):
		var d diskChat
		if err := codec.Unmarshal(val, &d); err != nil {
			rec.Detail = "Error: unmarshal failed"
			return rec
		}
		c := toChat(d)
		rec.Kind, rec.ID, rec.At = "CHAT", string(c.ID), c.CreatedAt
		rec.Detail = fmt.Sprintf("%s <-> %s", c.Members[0], c.Members[1])
	case strings.HasPrefix(key, messagePrefix):
		var d diskMessage
		if err := codec.Unmarshal(val, &d); err != nil {
			rec.Detail = "Error: unmarshal failed"
			return rec
		}
		m := toMessage(d)
		rec.Kind, rec.ID, rec.At = "MESSAGE", string(m.ID), m.CreatedAt
		rec.Detail = fmt.Sprintf("#%d %s -> %s: %s", m.Seq, m.SenderID, m.ReceiverID, m.Text)
	case strings.HasPrefix(key, pairPrefix), strings.HasPrefix(key, memberPrefix), strings.HasPrefix(key, messageIDPrefix):
		rec.Kind = "INDEX"
		rec.Detail = strings.ReplaceAll(string(val), "\x00", "|")
	}
	return rec
}

// ScanRecords decodes every entry under prefix, in key order.
func ScanRecords(db *badger.DB, prefix string) ([]Record, error) {
	var records []Record
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				records = append(records, DecodeRecord(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}
