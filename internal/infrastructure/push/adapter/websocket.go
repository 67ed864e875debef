package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/internal/infrastructure/push/port"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	readTimeout = 60 * time.Second
)

// wire frame shared by both transport adapters. Type is "message" for a
// pushed chat message and "presence" for an online snapshot.
type frame struct {
	Type    string          `json:"type"`
	Message *messagePayload `json:"message,omitempty"`
	Online  []string        `json:"online,omitempty"`
}

type messagePayload struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
	Body      *string   `json:"body,omitempty"`
	ImageURL  *string   `json:"image_url,omitempty"`
}

func (p *messagePayload) toEvent() port.MessageEvent {
	return port.MessageEvent{
		ID:        p.ID,
		SenderID:  p.SenderID,
		CreatedAt: p.CreatedAt,
		Body:      p.Body,
		ImageURL:  p.ImageURL,
	}
}

// WebsocketTransport consumes push events over a single client websocket.
// One read loop runs for the life of the connection; the active subscription
// decides which conversation's message events are forwarded.
type WebsocketTransport struct {
	mu            sync.Mutex
	ws            *websocket.Conn
	handlers      port.Handlers
	counterpartID string
	once          sync.Once
	closed        chan struct{}
}

// Ensure interface compliance at compile time
var _ port.Transport = (*WebsocketTransport)(nil)

// NewWebsocketTransport dials the push endpoint and starts the read loop.
// The caller's identity travels as the user_id query parameter.
func NewWebsocketTransport(endpoint, userID string) (*WebsocketTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("push: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("push: dial %s: %w", u.String(), err)
	}

	t := &WebsocketTransport{
		ws:     ws,
		closed: make(chan struct{}),
	}

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go t.readLoop()
	go t.pingLoop()

	return t, nil
}

// NewWebsocketTransportFromEnv dials the endpoint named by CHAT_WS_URL.
func NewWebsocketTransportFromEnv(userID string) (*WebsocketTransport, error) {
	endpoint := os.Getenv("CHAT_WS_URL")
	if endpoint == "" {
		return nil, errors.New("push: CHAT_WS_URL environment variable is not set")
	}
	return NewWebsocketTransport(endpoint, userID)
}

func (t *WebsocketTransport) Subscribe(counterpartID string, h port.Handlers) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
		return errors.New("push: transport closed")
	default:
	}
	t.counterpartID = counterpartID
	t.handlers = h
	return nil
}

func (t *WebsocketTransport) Unsubscribe() {
	t.mu.Lock()
	t.counterpartID = ""
	t.handlers = port.Handlers{}
	t.mu.Unlock()
}

// Close terminates the connection and stops both loops.
func (t *WebsocketTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = t.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
			time.Now().Add(writeWait))
		_ = t.ws.Close()
	})
	return nil
}

func (t *WebsocketTransport) readLoop() {
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			t.dispatchDisconnect(err)
			_ = t.Close()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// malformed frame: skip, the channel itself is still healthy
			continue
		}
		t.dispatch(f)
	}
}

func (t *WebsocketTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *WebsocketTransport) dispatch(f frame) {
	t.mu.Lock()
	h := t.handlers
	counterpart := t.counterpartID
	t.mu.Unlock()

	switch f.Type {
	case "message":
		if f.Message == nil || h.Message == nil {
			return
		}
		// Only the subscribed conversation's messages are forwarded.
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

func (t *WebsocketTransport) dispatchDisconnect(err error) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.Disconnect != nil {
		h.Disconnect(err)
	}
}
