package session

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"chat-sync/internal/models"
)

const preferencesKeyPrefix = "preferences:"

// PreferenceStore reads the user preference record once at startup.
type PreferenceStore interface {
	Load(userID string) (models.Preferences, error)
	Save(userID string, prefs models.Preferences) error
}

// BadgerPreferences persists preference records in the local badger
// database, alongside the conversation snapshot.
type BadgerPreferences struct {
	db *badger.DB
}

// NewBadgerPreferences wraps an open badger database.
func NewBadgerPreferences(db *badger.DB) *BadgerPreferences {
	return &BadgerPreferences{db: db}
}

// Load returns the stored record, or the safe defaults when the record is
// missing or unreadable (a corrupt record is an error so the caller can log
// it, but the returned value is always usable).
func (s *BadgerPreferences) Load(userID string) (models.Preferences, error) {
	prefs := models.DefaultPreferences()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(preferencesKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get preferences: %w", err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &prefs); err != nil {
				prefs = models.DefaultPreferences()
				return fmt.Errorf("decode preferences: %w", err)
			}
			return nil
		})
	})
	return prefs, err
}

// Save rewrites the record.
func (s *BadgerPreferences) Save(userID string, prefs models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(preferencesKeyPrefix+userID), data)
	})
}
