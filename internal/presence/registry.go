package presence

import (
	"sort"
	"sync"

	"chat-sync/internal/events"
)

// Registry tracks the set of user identifiers currently online. The set is
// authoritative only for the current connection: a fresh connection must
// apply a full snapshot before incremental deltas are trusted.
type Registry struct {
	mu     sync.RWMutex
	online map[string]struct{}
	primed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{online: make(map[string]struct{})}
}

// ApplySnapshot replaces the entire online set. Called once per connection,
// immediately after identity registration.
func (r *Registry) ApplySnapshot(userIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			r.online[id] = struct{}{}
		}
	}
	r.primed = true
}

// ApplyDelta adds or removes a single identifier. Adding an already-online
// user is idempotent; removing an unknown user is a no-op.
func (r *Registry) ApplyDelta(userID, status string) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == events.StatusOnline {
		r.online[userID] = struct{}{}
		return
	}
	delete(r.online, userID)
}

// Invalidate marks the registry as unprimed. Called when the transport drops,
// since the online set is only valid for the connection it was built on.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primed = false
}

// IsOnline reports whether userID is currently online.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userID]
	return ok
}

// Primed reports whether a snapshot has been applied on the current
// connection.
func (r *Registry) Primed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primed
}

// Snapshot returns the online set in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.online))
	for id := range r.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
