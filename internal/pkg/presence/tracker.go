package presence

import (
	"sort"
	"sync"
)

// Tracker holds the set of currently-online participant identifiers for the
// active conversation context. The set is replaced wholesale on every push
// snapshot; the latest snapshot is the source of truth.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// ApplyUpdate replaces the tracked set with the given snapshot.
func (t *Tracker) ApplyUpdate(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		next[id] = struct{}{}
	}

	t.mu.Lock()
	t.online = next
	t.mu.Unlock()
}

// IsOnline reports whether the identifier is in the latest snapshot.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	_, ok := t.online[id]
	t.mu.RUnlock()
	return ok
}

// Online returns a sorted copy of the current snapshot.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Reset clears the set. Called when the push channel disconnects; nobody is
// known to be online until the next snapshot arrives.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.mu.Unlock()
}
