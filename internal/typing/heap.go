package typing

import "time"

// heapEntry is one scheduled expiry, keyed by conversation identifier.
type heapEntry struct {
	key      string
	deadline time.Time
	index    int
}

// expiryHeap is a deadline-ordered min-heap with O(1) key lookup, so a
// repeated typing pulse updates its existing deadline in place instead of
// allocating a timer per pulse. Not safe for concurrent use; the coordinator
// holds its lock around every call.
type expiryHeap struct {
	entries []*heapEntry
	byKey   map[string]*heapEntry
}

func newExpiryHeap() *expiryHeap {
	return &expiryHeap{byKey: make(map[string]*heapEntry)}
}

// set schedules or reschedules the expiry for key.
func (h *expiryHeap) set(key string, deadline time.Time) {
	if existing, ok := h.byKey[key]; ok {
		existing.deadline = deadline
		h.fix(existing.index)
		return
	}
	entry := &heapEntry{key: key, deadline: deadline, index: len(h.entries)}
	h.entries = append(h.entries, entry)
	h.byKey[key] = entry
	h.bubbleUp(entry.index)
}

// remove drops the expiry for key if present.
func (h *expiryHeap) remove(key string) {
	entry, ok := h.byKey[key]
	if !ok {
		return
	}
	h.removeAt(entry.index)
}

// peek returns the earliest entry without removing it.
func (h *expiryHeap) peek() *heapEntry {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[0]
}

// pop removes and returns the earliest entry.
func (h *expiryHeap) pop() *heapEntry {
	if len(h.entries) == 0 {
		return nil
	}
	entry := h.entries[0]
	h.removeAt(0)
	return entry
}

func (h *expiryHeap) removeAt(i int) {
	entry := h.entries[i]
	last := len(h.entries) - 1
	h.swap(i, last)
	h.entries = h.entries[:last]
	delete(h.byKey, entry.key)
	if i < last {
		h.fix(i)
	}
}

func (h *expiryHeap) fix(i int) {
	h.bubbleUp(i)
	h.bubbleDown(i)
}

func (h *expiryHeap) bubbleUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.entries[i].deadline.Before(h.entries[parent].deadline) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *expiryHeap) bubbleDown(i int) {
	n := len(h.entries)
	for {
		smallest := i
		if left := 2*i + 1; left < n && h.entries[left].deadline.Before(h.entries[smallest].deadline) {
			smallest = left
		}
		if right := 2*i + 2; right < n && h.entries[right].deadline.Before(h.entries[smallest].deadline) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *expiryHeap) swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}
