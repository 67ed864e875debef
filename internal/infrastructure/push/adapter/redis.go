package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"chatsync/internal/infrastructure/push/port"
)

const presenceChannel = "chat:presence"

func messageChannel(userID string) string {
	return "chat:messages:" + userID
}

// RedisTransport consumes push events over Redis pub/sub. It speaks the same
// frame format as the websocket adapter: one channel per recipient for
// messages plus a shared presence channel.
type RedisTransport struct {
	client *redis.Client
	userID string

	mu            sync.Mutex
	handlers      port.Handlers
	counterpartID string
	pubsub        *redis.PubSub
	cancel        context.CancelFunc
}

// Ensure interface compliance at compile time
var _ port.Transport = (*RedisTransport)(nil)

// NewRedisTransportFromEnv constructs a transport using the REDIS_URL
// environment variable and verifies connectivity with a ping.
func NewRedisTransportFromEnv(ctx context.Context, userID string) (*RedisTransport, error) {
	rawURL := os.Getenv("REDIS_URL")
	if rawURL == "" {
		return nil, errors.New("push: REDIS_URL environment variable is not set")
	}
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("push: parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("push: redis ping: %w", err)
	}
	return &RedisTransport{client: c, userID: userID}, nil
}

func (t *RedisTransport) Subscribe(counterpartID string, h port.Handlers) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := t.client.Subscribe(ctx, messageChannel(t.userID), presenceChannel)

	t.counterpartID = counterpartID
	t.handlers = h
	t.pubsub = pubsub
	t.cancel = cancel

	go t.receiveLoop(pubsub)
	return nil
}

func (t *RedisTransport) Unsubscribe() {
	t.mu.Lock()
	t.stopLocked()
	t.handlers = port.Handlers{}
	t.counterpartID = ""
	t.mu.Unlock()
}

func (t *RedisTransport) Close() error {
	t.Unsubscribe()
	return t.client.Close()
}

// stopLocked tears down the current pub/sub session. Callers hold t.mu.
func (t *RedisTransport) stopLocked() {
	if t.pubsub != nil {
		_ = t.pubsub.Close()
		t.pubsub = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *RedisTransport) receiveLoop(pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for msg := range ch {
		var f frame
		if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
			continue
		}
		t.dispatch(pubsub, f)
	}

	// Channel closed: either an explicit Unsubscribe or a lost connection.
	t.mu.Lock()
	h := t.handlers
	current := t.pubsub == pubsub
	t.mu.Unlock()
	if current && h.Disconnect != nil {
		h.Disconnect(errors.New("push: redis subscription closed"))
	}
}

func (t *RedisTransport) dispatch(pubsub *redis.PubSub, f frame) {
	t.mu.Lock()
	if t.pubsub != pubsub {
		// superseded by a newer subscription; drop late deliveries
		t.mu.Unlock()
		return
	}
	h := t.handlers
	counterpart := t.counterpartID
	t.mu.Unlock()

	switch f.Type {
	case "message":
		if f.Message == nil || h.Message == nil {
			return
		}
		if f.Message.SenderID != counterpart {
			return
		}
		h.Message(f.Message.toEvent())
	case "presence":
		if h.Presence != nil {
			h.Presence(f.Online)
		}
	}
}
