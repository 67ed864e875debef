package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/infrastructure/push/port"
	"chatsync/internal/pkg/conversation/domain"
)

// ErrTransport indicates a timeline load or push-subscription failure.
// The prior timeline state is left intact when it is returned.
var ErrTransport = errors.New("conversation: transport failure")

// Loader fetches the message history for a counterpart from the chat backend.
type Loader interface {
	Load(ctx context.Context, counterpartID string) ([]domain.Message, error)
}

// PresenceSink consumes presence snapshots delivered on the timeline's push
// channel.
type PresenceSink interface {
	ApplyUpdate(ids []string)
	Reset()
}

// Observer is notified with a snapshot after every timeline mutation.
// Observers run outside the timeline's lock and may call back into it.
type Observer func(messages []domain.Message)

// Timeline is the ordered message store for the active conversation. It
// merges optimistic local inserts with server-pushed inserts, guarantees id
// uniqueness, and ties its push subscription to the selected counterpart.
type Timeline struct {
	mu        sync.RWMutex
	selfID    string
	loader    Loader
	transport port.Transport
	presence  PresenceSink

	counterpartID string
	messages      []domain.Message
	index         map[string]struct{}
	subscribed    bool
	observers     []Observer
}

// NewTimeline constructs a Timeline owned by the given participant.
// presence may be nil when no presence tracking is wired.
func NewTimeline(selfID string, loader Loader, transport port.Transport, presence PresenceSink) *Timeline {
	return &Timeline{
		selfID:    selfID,
		loader:    loader,
		transport: transport,
		presence:  presence,
		index:     make(map[string]struct{}),
	}
}

// Observe registers an observer for timeline mutations.
func (t *Timeline) Observe(fn Observer) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Load fetches the counterpart's history and replaces the store with it.
// On failure the current store is untouched.
func (t *Timeline) Load(ctx context.Context, counterpartID string) ([]domain.Message, error) {
	if counterpartID == "" {
		return nil, fmt.Errorf("%w: counterpart id is required", ErrTransport)
	}

	msgs, err := t.loader.Load(ctx, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	index := make(map[string]struct{}, len(msgs))
	deduped := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := index[m.ID]; ok {
			continue
		}
		index[m.ID] = struct{}{}
		deduped = append(deduped, m)
	}

	t.mu.Lock()
	t.counterpartID = counterpartID
	t.messages = deduped
	t.index = index
	t.mu.Unlock()

	t.notify()
	return t.Messages(), nil
}

// AppendLocal creates a provisional entry for an outgoing draft with a
// locally generated id, before any remote confirmation. The entry is visible
// immediately.
func (t *Timeline) AppendLocal(draft domain.Draft) (domain.Message, error) {
	if draft.Text == nil && draft.ImageRef == nil {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		SenderID:  t.selfID,
		CreatedAt: time.Now().UTC(),
		Text:      draft.Text,
		ImageRef:  draft.ImageRef,
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.index[msg.ID] = struct{}{}
	t.mu.Unlock()

	t.notify()
	return msg, nil
}

// ApplyRemote merges a pushed message. Duplicate deliveries are dropped by
// id, so applying the same event twice leaves exactly one entry.
func (t *Timeline) ApplyRemote(msg domain.Message) {
	t.mu.Lock()
	if _, ok := t.index[msg.ID]; ok {
		t.mu.Unlock()
		return
	}
	t.messages = append(t.messages, msg)
	t.index[msg.ID] = struct{}{}
	t.mu.Unlock()

	t.notify()
}

// Remove deletes a message. Only the message's own sender may delete it;
// the check is local, no round trip.
func (t *Timeline) Remove(callerID, id string) error {
	t.mu.Lock()
	pos := -1
	for i, m := range t.messages {
		if m.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		t.mu.Unlock()
		return domain.ErrNotFound
	}
	if t.messages[pos].SenderID != callerID {
		t.mu.Unlock()
		return domain.ErrNotSender
	}
	t.messages = append(t.messages[:pos], t.messages[pos+1:]...)
	delete(t.index, id)
	t.mu.Unlock()

	t.notify()
	return nil
}

// Subscribe attaches the push listener for the given counterpart. Pushed
// messages feed the merge; presence snapshots feed the presence sink; a
// channel disconnect resets presence.
func (t *Timeline) Subscribe(counterpartID string) error {
	handlers := port.Handlers{
		Message: func(ev port.MessageEvent) {
			t.applyPush(counterpartID, ev)
		},
	}
	if t.presence != nil {
		handlers.Presence = t.presence.ApplyUpdate
		handlers.Disconnect = func(error) {
			t.presence.Reset()
		}
	}

	if err := t.transport.Subscribe(counterpartID, handlers); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	t.mu.Lock()
	t.subscribed = true
	t.mu.Unlock()
	return nil
}

// Unsubscribe detaches the push listener. Safe to call repeatedly.
func (t *Timeline) Unsubscribe() {
	t.mu.Lock()
	if !t.subscribed {
		t.mu.Unlock()
		return
	}
	t.subscribed = false
	t.mu.Unlock()

	t.transport.Unsubscribe()
}

// applyPush merges a pushed message only while its subscription's counterpart
// is still the selected one; late events from a torn-down context are dropped.
func (t *Timeline) applyPush(counterpartID string, ev port.MessageEvent) {
	t.mu.RLock()
	current := t.counterpartID
	t.mu.RUnlock()
	if current != counterpartID {
		return
	}

	t.ApplyRemote(domain.Message{
		ID:        ev.ID,
		SenderID:  ev.SenderID,
		CreatedAt: ev.CreatedAt,
		Text:      ev.Body,
		ImageRef:  ev.ImageURL,
	})
}

// Messages returns a snapshot copy of the timeline in insertion order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

// Last returns the most recent entry, if the timeline is non-empty.
func (t *Timeline) Last() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return domain.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// CounterpartID returns the counterpart the store currently belongs to.
func (t *Timeline) CounterpartID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counterpartID
}

func (t *Timeline) notify() {
	t.mu.RLock()
	observers := append([]Observer(nil), t.observers...)
	snapshot := append([]domain.Message(nil), t.messages...)
	t.mu.RUnlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
