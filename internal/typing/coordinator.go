package typing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a typing entry stays visible without a refresh.
const DefaultTTL = 3 * time.Second

// Entry is the single active typer tracked for a conversation.
type Entry struct {
	ConversationID string
	UserID         string
	UserName       string
	StartedAt      time.Time
}

// Coordinator tracks per-conversation typing indicators with self-expiring
// entries. One entry is retained per conversation; a later typer replaces
// the earlier one (last writer wins). Expiries live in a single deadline
// heap swept on a fixed tick rather than one timer per entry.
type Coordinator struct {
	mu       sync.Mutex
	ttl      time.Duration
	clock    func() time.Time
	typers   map[string]Entry
	expiries *expiryHeap
	log      zerolog.Logger
}

// NewCoordinator creates a coordinator with the default TTL.
func NewCoordinator(log zerolog.Logger) *Coordinator {
	return newCoordinator(log, DefaultTTL, time.Now)
}

func newCoordinator(log zerolog.Logger, ttl time.Duration, clock func() time.Time) *Coordinator {
	return &Coordinator{
		ttl:      ttl,
		clock:    clock,
		typers:   make(map[string]Entry),
		expiries: newExpiryHeap(),
		log:      log,
	}
}

// StartTyping records userID as the active typer in the conversation and
// resets the entry's expiry.
func (c *Coordinator) StartTyping(conversationID, userID, userName string) {
	if conversationID == "" || userID == "" {
		return
	}
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typers[conversationID] = Entry{
		ConversationID: conversationID,
		UserID:         userID,
		UserName:       userName,
		StartedAt:      now,
	}
	c.expiries.set(conversationID, now.Add(c.ttl))
}

// StopTyping clears the indicator immediately, but only if userID is still
// the active typer; a stop from a typer that has already been replaced is a
// no-op.
func (c *Coordinator) StopTyping(conversationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.typers[conversationID]
	if !ok || entry.UserID != userID {
		return
	}
	delete(c.typers, conversationID)
	c.expiries.remove(conversationID)
}

// Typer returns the active typer for the conversation, or nil. An entry past
// its TTL is treated as absent even if the sweep has not evicted it yet.
func (c *Coordinator) Typer(conversationID string) *Entry {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.typers[conversationID]
	if !ok || now.Sub(entry.StartedAt) >= c.ttl {
		return nil
	}
	out := entry
	return &out
}

// Sweep evicts every entry whose deadline has passed and returns the count.
func (c *Coordinator) Sweep() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for {
		next := c.expiries.peek()
		if next == nil || next.deadline.After(now) {
			return evicted
		}
		c.expiries.pop()
		delete(c.typers, next.key)
		evicted++
	}
}

// Run sweeps on a fixed tick until ctx is done.
func (c *Coordinator) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("evicted", n).Msg("typing entries expired")
			}
		}
	}
}
