package convcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/models"
)

// DefaultFlushInterval is how often the dirty snapshot is written back.
const DefaultFlushInterval = 2 * time.Second

// Cache is the durable local snapshot of conversation summaries, rendered
// before any network round-trip completes and reconciled against fresh
// server data and live events afterwards. It is the single writer of the
// snapshot store; persistence is debounced behind a dirty flag.
type Cache struct {
	mu            sync.Mutex
	store         SnapshotStore
	currentUserID string
	order         []*models.ConversationSummary
	byID          map[string]*models.ConversationSummary
	active        string
	dirty         bool
	log           zerolog.Logger
}

// NewCache creates a cache for currentUserID backed by store.
func NewCache(store SnapshotStore, currentUserID string, log zerolog.Logger) *Cache {
	return &Cache{
		store:         store,
		currentUserID: currentUserID,
		byID:          make(map[string]*models.ConversationSummary),
		log:           log,
	}
}

// LoadCached reads the durable snapshot and returns it for immediate
// rendering. A corrupt snapshot is logged and treated as a cache miss; the
// next MergeFresh repopulates the list.
func (c *Cache) LoadCached() []models.ConversationSummary {
	list, err := c.store.Load()
	if err != nil {
		c.log.Warn().Err(err).Msg("conversation snapshot unreadable, starting empty")
		list = nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.byID = make(map[string]*models.ConversationSummary, len(list))
	for i := range list {
		cp := list[i]
		c.order = append(c.order, &cp)
		c.byID[cp.ID] = &cp
	}
	return c.listLocked()
}

// MergeFresh reconciles the authoritative server list into the cache: an
// identifier union preferring server data field by field, except that a
// higher locally-accrued unread counter is preserved so a fetch never
// silently erases unread state from live events. Local-only summaries are
// kept.
func (c *Cache) MergeFresh(server []models.ConversationSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make([]*models.ConversationSummary, 0, len(server)+len(c.order))
	seen := make(map[string]struct{}, len(server))
	for i := range server {
		sv := server[i]
		if local, ok := c.byID[sv.ID]; ok && local.Unread > sv.Unread {
			sv.Unread = local.Unread
		}
		if sv.ID == c.active {
			sv.Unread = 0
		}
		cp := sv
		merged = append(merged, &cp)
		seen[sv.ID] = struct{}{}
	}
	for _, local := range c.order {
		if _, ok := seen[local.ID]; !ok {
			merged = append(merged, local)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return lastActivity(merged[i]).After(lastActivity(merged[j]))
	})

	c.order = merged
	c.byID = make(map[string]*models.ConversationSummary, len(merged))
	for _, s := range merged {
		c.byID[s.ID] = s
	}
	c.dirty = true
}

// ApplyIncoming patches the one summary the message belongs to: preview,
// unread when applicable, and a move to the front of the list. No full
// resort happens. A message for an unknown conversation creates its summary.
func (c *Cache) ApplyIncoming(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, ok := c.byID[msg.ConversationID]
	if !ok {
		summary = &models.ConversationSummary{
			ID:   msg.ConversationID,
			Kind: models.ConversationDirect,
			Participants: []models.Participant{
				{UserID: msg.SenderID, Name: msg.SenderName},
			},
		}
		c.byID[summary.ID] = summary
		c.order = append(c.order, summary)
	}

	summary.LastMessage = &models.LastMessage{
		Content:  msg.Content,
		SenderID: msg.SenderID,
		At:       msg.CreatedAt,
	}
	if msg.SenderID != c.currentUserID && msg.ConversationID != c.active {
		summary.Unread++
	}
	c.moveToFront(summary.ID)
	c.dirty = true
}

// Open marks the conversation as the actively viewed one and resets its
// unread counter.
func (c *Cache) Open(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = conversationID
	if summary, ok := c.byID[conversationID]; ok && summary.Unread != 0 {
		summary.Unread = 0
		c.dirty = true
	}
}

// CloseActive clears the actively viewed conversation.
func (c *Cache) CloseActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = ""
}

// Active returns the actively open conversation id, or "".
func (c *Cache) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Get returns a copy of one summary.
func (c *Cache) Get(conversationID string) (models.ConversationSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary, ok := c.byID[conversationID]
	if !ok {
		return models.ConversationSummary{}, false
	}
	return *summary, true
}

// List returns copies of all summaries, most recent activity first.
func (c *Cache) List() []models.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

// Persist writes the snapshot if anything changed since the last write.
func (c *Cache) Persist() error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	list := c.listLocked()
	c.dirty = false
	c.mu.Unlock()

	if err := c.store.Save(list); err != nil {
		c.log.Error().Err(err).Msg("conversation snapshot write failed")
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	return nil
}

// RunFlusher persists the snapshot on a fixed tick while dirty, debouncing
// per-event write amplification. A final flush runs on shutdown.
func (c *Cache) RunFlusher(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.Persist()
			return
		case <-ticker.C:
			_ = c.Persist()
		}
	}
}

func (c *Cache) listLocked() []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(c.order))
	for i, s := range c.order {
		out[i] = *s
	}
	return out
}

func (c *Cache) moveToFront(conversationID string) {
	idx := -1
	for i, s := range c.order {
		if s.ID == conversationID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}
	moved := c.order[idx]
	copy(c.order[1:idx+1], c.order[:idx])
	c.order[0] = moved
}

func lastActivity(s *models.ConversationSummary) time.Time {
	if s.LastMessage == nil {
		return time.Time{}
	}
	return s.LastMessage.At
}
