package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	qport "chatsync/internal/infrastructure/queue/port"
	"chatsync/internal/pkg/augment"
	"chatsync/internal/pkg/conversation"
	"chatsync/internal/pkg/conversation/domain"
	"chatsync/internal/pkg/conversation/task"
)

// ErrNoSelection is returned by operations that need an active conversation.
var ErrNoSelection = errors.New("syncer: no conversation selected")

// Remover propagates a local message delete to the chat backend.
type Remover interface {
	Delete(ctx context.Context, messageID string) error
}

// Controller binds conversation selection to the timeline's subscription
// lifecycle, keeps the augmentation orchestrator scoped to the active
// context, and drives the optimistic send path.
type Controller struct {
	mu       sync.Mutex
	selfID   string
	timeline *conversation.Timeline
	orch     *augment.Orchestrator
	queue    qport.Client
	remote   Remover

	selected string
}

// NewController wires the controller and registers itself as the timeline
// observer that re-derives quick replies. queue and remote may be nil when
// delivery and delete propagation are handled elsewhere (tests).
func NewController(selfID string, timeline *conversation.Timeline, orch *augment.Orchestrator, queue qport.Client, remote Remover) *Controller {
	c := &Controller{
		selfID:   selfID,
		timeline: timeline,
		orch:     orch,
		queue:    queue,
		remote:   remote,
	}
	timeline.Observe(c.onTimelineChanged)
	return c
}

// Select switches the active conversation. The new timeline is loaded first;
// only on success is the previous subscription fully released, the
// orchestrator reset, and the new subscription attached. A failed load
// leaves the prior state untouched. Once the load has succeeded the switch is
// committed: a subscribe failure is returned, but the selection already names
// the new counterpart, it is just not receiving push events.
func (c *Controller) Select(ctx context.Context, counterpartID string) error {
	c.mu.Lock()
	if counterpartID == c.selected && counterpartID != "" {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Load outside the lock: the timeline notifies observers, which call
	// back into the controller.
	if _, err := c.timeline.Load(ctx, counterpartID); err != nil {
		return err
	}

	c.mu.Lock()
	// old listeners must be fully released before attaching new ones; the
	// timeline already belongs to the new counterpart, so the selection
	// moves with it regardless of how the subscribe below fares
	c.timeline.Unsubscribe()
	c.orch.Reset()
	c.selected = counterpartID

	if err := c.timeline.Subscribe(counterpartID); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("syncer: select %s: %w", counterpartID, err)
	}
	c.mu.Unlock()

	// surface quick replies for the freshly loaded timeline
	c.onTimelineChanged(c.timeline.Messages())
	return nil
}

// Selected returns the active counterpart, empty when none.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Send appends the draft optimistically and enqueues its delivery. The local
// entry is visible before the backend confirms.
func (c *Controller) Send(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	c.mu.Lock()
	counterpartID := c.selected
	c.mu.Unlock()
	if counterpartID == "" {
		return domain.Message{}, ErrNoSelection
	}

	msg, err := c.timeline.AppendLocal(draft)
	if err != nil {
		return domain.Message{}, err
	}

	// sending consumes the draft and everything derived from it
	c.orch.SetDraft(ctx, "")

	if c.queue != nil {
		t, err := task.NewDeliverMessageTask(counterpartID, msg)
		if err != nil {
			return msg, fmt.Errorf("syncer: build delivery task: %w", err)
		}
		if _, err := c.queue.Enqueue(ctx, t, qport.EnqueueOption{Queue: task.DeliveryQueue}); err != nil {
			return msg, fmt.Errorf("syncer: enqueue delivery: %w", err)
		}
	}
	return msg, nil
}

// Delete removes one of the caller's own messages. The sender check is local
// and rejects without a round trip; only an accepted delete is propagated to
// the backend.
func (c *Controller) Delete(ctx context.Context, messageID string) error {
	if err := c.timeline.Remove(c.selfID, messageID); err != nil {
		return err
	}
	if c.remote != nil {
		if err := c.remote.Delete(ctx, messageID); err != nil {
			return fmt.Errorf("syncer: propagate delete: %w", err)
		}
	}
	return nil
}

// Summarize condenses the active timeline's text messages. Returns false
// when the orchestrator is busy or there is nothing to summarize.
func (c *Controller) Summarize(ctx context.Context) bool {
	transcript := c.transcript()
	return c.orch.Summarize(ctx, transcript)
}

// Close releases the push subscription and abandons per-context work.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline.Unsubscribe()
	c.orch.Reset()
	c.selected = ""
}

// onTimelineChanged re-derives the quick-reply set whenever the timeline
// mutates. The suggestions belong to the selected conversation only: the
// latest entry must be an inbound text message from the current counterpart.
func (c *Controller) onTimelineChanged(messages []domain.Message) {
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]

	c.mu.Lock()
	selected := c.selected
	c.mu.Unlock()

	if selected == "" || !last.IsFrom(selected) || !last.HasText() {
		return
	}
	c.orch.SuggestQuickReplies(*last.Text)
}

func (c *Controller) transcript() []augment.SummaryMessage {
	msgs := c.timeline.Messages()
	out := make([]augment.SummaryMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.HasText() {
			continue
		}
		out = append(out, augment.SummaryMessage{Sender: m.SenderID, Text: *m.Text})
	}
	return out
}
