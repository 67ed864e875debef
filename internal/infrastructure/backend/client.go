package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"chatsync/internal/pkg/conversation/domain"
)

// Client talks to the chat backend's REST surface: history fetch, delivery of
// optimistic sends, and deletes. Only this boundary is known here; the
// backend's storage is its own concern.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientFromEnv constructs a Client using the CHAT_API_URL environment
// variable.
func NewClientFromEnv() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("CHAT_API_URL"))
	if baseURL == "" {
		return nil, errors.New("backend: CHAT_API_URL environment variable is not set")
	}
	return NewClient(baseURL), nil
}

// messagePayload is the wire shape of a message on the backend API.
// Kept separate from the domain type to avoid coupling it to JSON tags.
type messagePayload struct {
	ID        string    `json:"_id"`
	SenderID  string    `json:"senderId"`
	Text      *string   `json:"text,omitempty"`
	Image     *string   `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p messagePayload) toDomain() domain.Message {
	return domain.Message{
		ID:        p.ID,
		SenderID:  p.SenderID,
		CreatedAt: p.CreatedAt,
		Text:      p.Text,
		ImageRef:  p.Image,
	}
}

// Load fetches the message history shared with the given counterpart, oldest
// first. Satisfies conversation.Loader.
func (c *Client) Load(ctx context.Context, counterpartID string) ([]domain.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages/"+counterpartID, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build history request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("fetch history", resp)
	}

	var payloads []messagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("backend: decode history: %w", err)
	}

	msgs := make([]domain.Message, 0, len(payloads))
	for _, p := range payloads {
		msgs = append(msgs, p.toDomain())
	}
	return msgs, nil
}

// Send delivers an optimistic message to the backend for persistence and
// fan-out. The locally generated id travels with it so the push echo merges
// idempotently.
func (c *Client) Send(ctx context.Context, counterpartID string, m domain.Message) error {
	body, err := json.Marshal(messagePayload{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Image:     m.ImageRef,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("backend: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/send/"+counterpartID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("send message", resp)
	}
	return nil
}

// Delete removes a message on the backend.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/messages/"+messageID, nil)
	if err != nil {
		return fmt.Errorf("backend: build delete request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: delete message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("delete message", resp)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return fmt.Errorf("backend: %s: %s (status %d)", op, payload.Message, resp.StatusCode)
	}
	return fmt.Errorf("backend: %s: status %d", op, resp.StatusCode)
}
