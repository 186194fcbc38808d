package convcache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"chat-sync/internal/models"
)

// snapshotKey is the single durable record holding the conversation list.
const snapshotKey = "conversations:snapshot"

// SnapshotStore persists the conversation list across application restarts.
type SnapshotStore interface {
	Load() ([]models.ConversationSummary, error)
	Save([]models.ConversationSummary) error
}

// BadgerStore is a SnapshotStore backed by an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Load reads the snapshot. A missing key returns an empty list; a record
// that fails to decode returns an error the cache treats as a miss.
func (s *BadgerStore) Load() ([]models.ConversationSummary, error) {
	var list []models.ConversationSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &list); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Save rewrites the snapshot.
func (s *BadgerStore) Save(list []models.ConversationSummary) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
}
