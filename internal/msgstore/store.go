package msgstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// ErrUnknownTemporary is returned when a temporary identifier has already
// been replaced or never existed.
var ErrUnknownTemporary = errors.New("unknown temporary message id")

// tempIDPrefix marks client-generated identifiers awaiting confirmation.
const tempIDPrefix = "tmp-"

// maxBufferedPerID bounds the pending-event buffer for a single message id.
const maxBufferedPerID = 32

type bufferedEvent struct {
	kind  string
	apply func(*models.Message)
}

// Store holds per-conversation ordered message lists. Messages are appended
// optimistically with a temporary id and later confirmed via
// ReplaceTemporary; events that reference a server id before the replacement
// lands are buffered keyed by that id and replayed once the message exists.
// Deletion is a tombstone: the slot is retained for ordering.
type Store struct {
	mu      sync.RWMutex
	byConv  map[string][]*models.Message
	byID    map[string]*models.Message
	pending map[string][]bufferedEvent
	clock   func() time.Time
	log     zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(log zerolog.Logger) *Store {
	return newStore(log, time.Now)
}

func newStore(log zerolog.Logger, clock func() time.Time) *Store {
	return &Store{
		byConv:  make(map[string][]*models.Message),
		byID:    make(map[string]*models.Message),
		pending: make(map[string][]bufferedEvent),
		clock:   clock,
		log:     log,
	}
}

// AppendPending inserts an optimistic outbound message under a temporary id
// and returns it.
func (s *Store) AppendPending(conversationID, senderID, senderName, content string, msgType models.MessageType) models.Message {
	msg := models.Message{
		ID:             tempIDPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		Type:           msgType,
		CreatedAt:      s.clock(),
		State:          models.StatePending,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(&msg)
	return msg
}

// Append inserts an inbound confirmed message. Appending a message whose id
// is already present is a no-op (the stream may carry duplicates). A
// self-authored echo that matches a still-pending optimistic message confirms
// that message in place instead of inserting a second copy.
func (s *Store) Append(conversationID string, msg models.Message) {
	msg.ConversationID = conversationID
	if msg.State == "" {
		msg.State = models.StateConfirmed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return
	}
	if temp := s.matchPendingEcho(&msg); temp != nil {
		s.confirm(temp, msg)
		return
	}
	copied := msg
	s.insert(&copied)
	s.replay(copied.ID)
}

// ReplaceTemporary swaps the temporary id for the server-assigned message,
// preserving the slot's position, and replays any events that arrived for
// the server id in the meantime.
func (s *Store) ReplaceTemporary(tempID string, server models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[tempID]
	if !ok || msg.State != models.StatePending {
		return ErrUnknownTemporary
	}
	s.confirm(msg, server)
	return nil
}

// MarkFailed flags an optimistic message whose send failed. The entry stays
// in place and is not retried automatically.
func (s *Store) MarkFailed(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.byID[tempID]; ok && msg.State == models.StatePending {
		msg.State = models.StateFailed
	}
}

// Edit replaces a message's content and sets its edited flag.
func (s *Store) Edit(messageID, newContent string) {
	s.applyOrBuffer(messageID, "edit", func(m *models.Message) {
		m.Content = newContent
		m.Edited = true
	})
}

// MarkDeleted tombstones a message: content is cleared, the slot remains.
func (s *Store) MarkDeleted(messageID string) {
	s.applyOrBuffer(messageID, "delete", func(m *models.Message) {
		m.Deleted = true
		m.Content = ""
	})
}

// ApplyReaction toggles userID's reaction: the same emoji again removes it,
// a different emoji replaces it (one reaction per user per message).
func (s *Store) ApplyReaction(messageID, userID, emojiID string) {
	s.applyOrBuffer(messageID, "reaction", func(m *models.Message) {
		for i, r := range m.Reactions {
			if r.UserID != userID {
				continue
			}
			if r.EmojiID == emojiID {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			} else {
				m.Reactions[i].EmojiID = emojiID
			}
			return
		}
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, EmojiID: emojiID})
	})
}

// MarkDelivered records a delivery acknowledgement from userID.
func (s *Store) MarkDelivered(messageID, userID string) {
	s.applyOrBuffer(messageID, "delivered", func(m *models.Message) {
		m.DeliveredTo = addUnique(m.DeliveredTo, userID)
	})
}

// MarkSeen records a read acknowledgement from userID.
func (s *Store) MarkSeen(messageID, userID string) {
	s.applyOrBuffer(messageID, "seen", func(m *models.Message) {
		m.ReadBy = addUnique(m.ReadBy, userID)
	})
}

// Get returns a copy of the message by id.
func (s *Store) Get(messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.byID[messageID]
	if !ok {
		return models.Message{}, false
	}
	return *msg, true
}

// List returns copies of the conversation's messages in insertion order.
func (s *Store) List(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.byConv[conversationID]
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

func (s *Store) insert(msg *models.Message) {
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg)
	s.byID[msg.ID] = msg
}

// confirm rewrites a pending message in place with the server's view and
// replays anything buffered under the server id. Runs under the write lock
// so no event can observe the half-replaced state.
func (s *Store) confirm(msg *models.Message, server models.Message) {
	delete(s.byID, msg.ID)
	msg.ID = server.ID
	if server.Content != "" {
		msg.Content = server.Content
	}
	if !server.CreatedAt.IsZero() {
		msg.CreatedAt = server.CreatedAt
	}
	msg.State = models.StateConfirmed
	s.byID[msg.ID] = msg
	s.replay(msg.ID)
}

// matchPendingEcho finds a still-pending optimistic message that the inbound
// echo confirms: same conversation, same sender, same content.
func (s *Store) matchPendingEcho(echo *models.Message) *models.Message {
	for _, m := range s.byConv[echo.ConversationID] {
		if m.State == models.StatePending && m.SenderID == echo.SenderID && m.Content == echo.Content {
			return m
		}
	}
	return nil
}

func (s *Store) applyOrBuffer(messageID, kind string, apply func(*models.Message)) {
	if messageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.byID[messageID]; ok {
		apply(msg)
		return
	}
	buf := s.pending[messageID]
	if len(buf) >= maxBufferedPerID {
		s.log.Warn().Str("message_id", messageID).Str("kind", kind).Msg("pending-event buffer full, dropping oldest")
		buf = buf[1:]
	}
	s.pending[messageID] = append(buf, bufferedEvent{kind: kind, apply: apply})
	observability.IncBufferedEvent(kind)
	s.log.Debug().Str("message_id", messageID).Str("kind", kind).Msg("buffered event for unknown message id")
}

func (s *Store) replay(messageID string) {
	buf, ok := s.pending[messageID]
	if !ok {
		return
	}
	delete(s.pending, messageID)
	msg := s.byID[messageID]
	for _, ev := range buf {
		ev.apply(msg)
		observability.IncReplayedEvent(ev.kind)
	}
	s.log.Debug().Str("message_id", messageID).Int("events", len(buf)).Msg("replayed buffered events")
}

func addUnique(list []string, id string) []string {
	if id == "" {
		return list
	}
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
