package task

import (
	"context"
	"encoding/json"
	"time"

	qport "chatsync/internal/infrastructure/queue/port"
	"chatsync/internal/pkg/conversation/domain"
)

// DeliverMessageTaskType is the queue task name for delivering an optimistic
// send to the chat backend.
const DeliverMessageTaskType = "conversation:deliver"

// DeliveryQueue is the logical queue deliveries are routed to.
const DeliveryQueue = "delivery"

// DeliverMessagePayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type DeliverMessagePayload struct {
	CounterpartID string    `json:"counterpartId"`
	ID            string    `json:"id"`
	SenderID      string    `json:"senderId"`
	Text          *string   `json:"text"`
	ImageRef      *string   `json:"imageRef"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Deliverer posts a message to the backend boundary.
type Deliverer interface {
	Send(ctx context.Context, counterpartID string, m domain.Message) error
}

// NewDeliverMessageTask builds the queue task for one optimistic message.
func NewDeliverMessageTask(counterpartID string, m domain.Message) (qport.Task, error) {
	payload, err := json.Marshal(DeliverMessagePayload{
		CounterpartID: counterpartID,
		ID:            m.ID,
		SenderID:      m.SenderID,
		Text:          m.Text,
		ImageRef:      m.ImageRef,
		CreatedAt:     m.CreatedAt,
	})
	if err != nil {
		return qport.Task{}, err
	}
	return qport.Task{Type: DeliverMessageTaskType, Payload: payload}, nil
}

// RegisterDeliverMessageTask binds the delivery handler to the provided
// server. The handler posts the message through the given Deliverer.
func RegisterDeliverMessageTask(srv qport.Server, d Deliverer) {
	srv.Register(DeliverMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p DeliverMessagePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry indefinitely
			return err
		}

		msg := domain.Message{
			ID:        p.ID,
			SenderID:  p.SenderID,
			CreatedAt: p.CreatedAt,
			Text:      p.Text,
			ImageRef:  p.ImageRef,
		}

		// give the backend a reasonable time budget per delivery attempt
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		return d.Send(ctx, p.CounterpartID, msg)
	})
}
