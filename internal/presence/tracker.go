package presence

import (
	"sort"
	"sync"
)

// Tracker holds the active participants of one scope.
// Learning: there is no Add/Remove. Every snapshot replaces the whole set,
// so interleaved join/leave deltas can never leave a ghost user behind.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]struct{}
	known bool
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]struct{})}
}

// OnSnapshot replaces the tracked set
func (t *Tracker) OnSnapshot(userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		next[id] = struct{}{}
	}

	t.mu.Lock()
	t.users = next
	t.known = true
	t.mu.Unlock()
}

// Reset forgets everything. Called whenever the connection changes, since
// a fresh connection knows nothing until its first snapshot.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.users = make(map[string]struct{})
	t.known = false
	t.mu.Unlock()
}

// Current returns the active user ids in sorted order
func (t *Tracker) Current() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) Contains(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.users[userID]
	return ok
}

// Known reports whether a snapshot arrived since the last Reset
func (t *Tracker) Known() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.known
}
