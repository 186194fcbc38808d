package msgstore

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func newTestStore() *Store {
	base := time.Unix(1700000000, 0)
	return newStore(zerolog.Nop(), func() time.Time { return base })
}

func TestAppendPendingCreatesTemporaryEntry(t *testing.T) {
	s := newTestStore()

	msg := s.AppendPending("conv1", "me", "Me", "hello", models.MessageText)

	assert.True(t, strings.HasPrefix(msg.ID, "tmp-"))
	assert.Equal(t, models.StatePending, msg.State)

	list := s.List("conv1")
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)
}

func TestReplaceTemporaryPreservesPosition(t *testing.T) {
	s := newTestStore()
	s.Append("conv1", models.Message{ID: "m1", SenderID: "u2", Content: "first"})
	temp := s.AppendPending("conv1", "me", "Me", "hello", models.MessageText)
	s.Append("conv1", models.Message{ID: "m3", SenderID: "u2", Content: "third"})

	err := s.ReplaceTemporary(temp.ID, models.Message{ID: "m2", Content: "hello", CreatedAt: time.Now()})
	require.NoError(t, err)

	list := s.List("conv1")
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, models.StateConfirmed, list[1].State)

	_, ok := s.Get(temp.ID)
	assert.False(t, ok)
}

func TestReplaceUnknownTemporaryFails(t *testing.T) {
	s := newTestStore()
	assert.ErrorIs(t, s.ReplaceTemporary("tmp-nope", models.Message{ID: "m1"}), ErrUnknownTemporary)
}

func TestDuplicateAppendIsNoop(t *testing.T) {
	s := newTestStore()
	s.Append("conv1", models.Message{ID: "m1", Content: "hello"})
	s.Append("conv1", models.Message{ID: "m1", Content: "hello again"})

	list := s.List("conv1")
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Content)
}

func TestSelfEchoConfirmsPendingEntry(t *testing.T) {
	s := newTestStore()
	temp := s.AppendPending("conv1", "me", "Me", "hello", models.MessageText)

	// The room echo can arrive before the REST response.
	s.Append("conv1", models.Message{ID: "m1", SenderID: "me", Content: "hello"})

	list := s.List("conv1")
	require.Len(t, list, 1)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, models.StateConfirmed, list[0].State)

	// The late REST confirmation then reports the id as already replaced.
	assert.ErrorIs(t, s.ReplaceTemporary(temp.ID, models.Message{ID: "m1"}), ErrUnknownTemporary)
	require.Len(t, s.List("conv1"), 1)
}

func TestMarkFailedKeepsEntryInPlace(t *testing.T) {
	s := newTestStore()
	temp := s.AppendPending("conv1", "me", "Me", "hello", models.MessageText)

	s.MarkFailed(temp.ID)

	got, ok := s.Get(temp.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateFailed, got.State)
	require.Len(t, s.List("conv1"), 1)
}

func TestEventsForUnknownIDAreBufferedAndReplayed(t *testing.T) {
	s := newTestStore()

	// Receipts and an edit race ahead of the message they refer to.
	s.MarkDelivered("m1", "u2")
	s.MarkSeen("m1", "u2")
	s.Edit("m1", "hello!")

	_, ok := s.Get("m1")
	require.False(t, ok)

	s.Append("conv1", models.Message{ID: "m1", SenderID: "me", Content: "hello"})

	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, got.DeliveredTo)
	assert.Equal(t, []string{"u2"}, got.ReadBy)
	assert.Equal(t, "hello!", got.Content)
	assert.True(t, got.Edited)
}

func TestBufferedEventsReplayAfterTemporaryReplacement(t *testing.T) {
	s := newTestStore()
	temp := s.AppendPending("conv1", "me", "Me", "hello", models.MessageText)

	// The recipient acknowledges the server id before our confirmation lands.
	s.MarkDelivered("m1", "u2")

	require.NoError(t, s.ReplaceTemporary(temp.ID, models.Message{ID: "m1"}))

	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, got.DeliveredTo)
}

func TestReactionToggle(t *testing.T) {
	s := newTestStore()
	s.Append("conv1", models.Message{ID: "m1", SenderID: "u2", Content: "hey"})

	s.ApplyReaction("m1", "u3", "thumbs_up")
	got, _ := s.Get("m1")
	require.Equal(t, []models.Reaction{{UserID: "u3", EmojiID: "thumbs_up"}}, got.Reactions)

	// A different emoji replaces the previous one.
	s.ApplyReaction("m1", "u3", "heart")
	got, _ = s.Get("m1")
	require.Equal(t, []models.Reaction{{UserID: "u3", EmojiID: "heart"}}, got.Reactions)

	// The same emoji again removes it.
	s.ApplyReaction("m1", "u3", "heart")
	got, _ = s.Get("m1")
	assert.Empty(t, got.Reactions)
}

func TestDeleteIsTombstone(t *testing.T) {
	s := newTestStore()
	s.Append("conv1", models.Message{ID: "m1", SenderID: "u2", Content: "secret"})
	s.Append("conv1", models.Message{ID: "m2", SenderID: "u2", Content: "after"})

	s.MarkDeleted("m1")

	list := s.List("conv1")
	require.Len(t, list, 2)
	assert.True(t, list[0].Deleted)
	assert.Empty(t, list[0].Content)
	assert.Equal(t, "m2", list[1].ID)
}

func TestDeliveredAndSeenDeduplicate(t *testing.T) {
	s := newTestStore()
	s.Append("conv1", models.Message{ID: "m1", SenderID: "me", Content: "hi"})

	s.MarkDelivered("m1", "u2")
	s.MarkDelivered("m1", "u2")
	s.MarkSeen("m1", "u2")
	s.MarkSeen("m1", "u2")

	got, _ := s.Get("m1")
	assert.Equal(t, []string{"u2"}, got.DeliveredTo)
	assert.Equal(t, []string{"u2"}, got.ReadBy)
}
