package port

import "time"

// MessageEvent is a "new message" push event scoped to one conversation.
// Field names mirror the wire payload; mapping to domain types happens in the
// consumer.
type MessageEvent struct {
	ID        string
	SenderID  string
	CreatedAt time.Time
	Body      *string
	ImageURL  *string
}

// Handlers groups the callbacks a subscriber installs on the push channel.
// Nil handlers are skipped. Handlers are invoked from the transport's read
// loop; implementations must not block.
type Handlers struct {
	// Message receives pushed messages for the subscribed counterpart.
	Message func(ev MessageEvent)
	// Presence receives the full current online-identifier set. Each snapshot
	// replaces the previous one wholesale.
	Presence func(online []string)
	// Disconnect fires once when the push channel is lost. After it fires no
	// further events are delivered until a new subscription is attached.
	Disconnect func(err error)
}

// Transport is the push-channel contract consumed by the conversation engine.
// Delivery is at-least-once with order preserved within a conversation; the
// engine does not care whether the adapter speaks websocket, pub/sub or
// anything else.
//
// At most one subscription is active per transport. Subscribe replaces any
// previous listener; Unsubscribe is idempotent.
type Transport interface {
	Subscribe(counterpartID string, h Handlers) error
	Unsubscribe()
	Close() error
}
