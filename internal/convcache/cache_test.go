package convcache

import (
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestCache(t *testing.T) (*Cache, *BadgerStore) {
	store := NewBadgerStore(openTestBadger(t))
	return NewCache(store, "me", zerolog.Nop()), store
}

func summary(id string, unread int, at time.Time) models.ConversationSummary {
	return models.ConversationSummary{
		ID:          id,
		Kind:        models.ConversationDirect,
		Unread:      unread,
		LastMessage: &models.LastMessage{Content: "x", SenderID: "u2", At: at},
	}
}

func TestLoadCachedOnEmptyStore(t *testing.T) {
	cache, _ := newTestCache(t)
	assert.Empty(t, cache.LoadCached())
}

func TestPersistAndReload(t *testing.T) {
	cache, store := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 2, time.Unix(100, 0))})
	require.NoError(t, cache.Persist())

	reloaded := NewCache(store, "me", zerolog.Nop())
	list := reloaded.LoadCached()
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, 2, list[0].Unread)
}

func TestPersistSkipsWhenClean(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 0, time.Unix(100, 0))})
	require.NoError(t, cache.Persist())
	// Second call has nothing to write.
	require.NoError(t, cache.Persist())
}

func TestMergeFreshPrefersHigherLocalUnread(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 0, time.Unix(100, 0))})

	// Two live messages accrue locally before the next fetch.
	cache.ApplyIncoming(models.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", CreatedAt: time.Unix(101, 0)})
	cache.ApplyIncoming(models.Message{ID: "m2", ConversationID: "c1", SenderID: "u2", CreatedAt: time.Unix(102, 0)})

	// The fetch raced and reports a staler counter.
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 1, time.Unix(102, 0))})

	got, ok := cache.Get("c1")
	require.True(t, ok)
	assert.Equal(t, 2, got.Unread)
}

func TestMergeFreshKeepsLocalOnlySummaries(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.ApplyIncoming(models.Message{ID: "m1", ConversationID: "brand-new", SenderID: "u2", CreatedAt: time.Unix(200, 0)})

	cache.MergeFresh([]models.ConversationSummary{summary("c1", 0, time.Unix(100, 0))})

	_, ok := cache.Get("brand-new")
	assert.True(t, ok)

	list := cache.List()
	require.Len(t, list, 2)
	// Newest activity first.
	assert.Equal(t, "brand-new", list[0].ID)
}

func TestApplyIncomingUpdatesPreviewAndOrder(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{
		summary("c1", 0, time.Unix(200, 0)),
		summary("c2", 0, time.Unix(100, 0)),
	})

	cache.ApplyIncoming(models.Message{ID: "m1", ConversationID: "c2", SenderID: "u2", Content: "ping", CreatedAt: time.Unix(300, 0)})

	list := cache.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "ping", list[0].LastMessage.Content)
	assert.Equal(t, 1, list[0].Unread)
}

func TestOwnMessagesDoNotIncrementUnread(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 0, time.Unix(100, 0))})

	cache.ApplyIncoming(models.Message{ID: "m1", ConversationID: "c1", SenderID: "me", CreatedAt: time.Unix(101, 0)})

	got, _ := cache.Get("c1")
	assert.Equal(t, 0, got.Unread)
}

func TestActiveConversationSuppressesUnread(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 3, time.Unix(100, 0))})

	cache.Open("c1")
	got, _ := cache.Get("c1")
	assert.Equal(t, 0, got.Unread)

	cache.ApplyIncoming(models.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", CreatedAt: time.Unix(101, 0)})
	got, _ = cache.Get("c1")
	assert.Equal(t, 0, got.Unread)

	cache.CloseActive()
	cache.ApplyIncoming(models.Message{ID: "m2", ConversationID: "c1", SenderID: "u2", CreatedAt: time.Unix(102, 0)})
	got, _ = cache.Get("c1")
	assert.Equal(t, 1, got.Unread)
}

func TestMergeFreshZeroesActiveConversation(t *testing.T) {
	cache, _ := newTestCache(t)
	cache.Open("c1")

	cache.MergeFresh([]models.ConversationSummary{summary("c1", 5, time.Unix(100, 0))})

	got, _ := cache.Get("c1")
	assert.Equal(t, 0, got.Unread)
}

type failingStore struct {
	loadErr error
}

func (s *failingStore) Load() ([]models.ConversationSummary, error) { return nil, s.loadErr }
func (s *failingStore) Save([]models.ConversationSummary) error     { return errors.New("disk full") }

func TestCorruptSnapshotIsACacheMiss(t *testing.T) {
	cache := NewCache(&failingStore{loadErr: errors.New("decode snapshot: bad")}, "me", zerolog.Nop())
	assert.Empty(t, cache.LoadCached())
}

func TestFailedPersistStaysDirty(t *testing.T) {
	cache := NewCache(&failingStore{}, "me", zerolog.Nop())
	cache.MergeFresh([]models.ConversationSummary{summary("c1", 0, time.Unix(100, 0))})

	require.Error(t, cache.Persist())
	// Still dirty: the next attempt writes (and fails) again.
	require.Error(t, cache.Persist())
}
