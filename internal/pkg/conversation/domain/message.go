package domain

import (
	"errors"
	"strings"
	"time"
)

// Domain-level errors for timeline behaviors
var (
	ErrEmptyMessage = errors.New("conversation: empty message (no text or image)")
	ErrNotSender    = errors.New("conversation: only the sender may delete a message")
	ErrNotFound     = errors.New("conversation: message not found")
)

// Message is an immutable entry in a conversation timeline.
// Entries are ordered by insertion; the timeline never reorders them.
type Message struct {
	ID        string
	SenderID  string
	CreatedAt time.Time
	Text      *string
	ImageRef  *string
}

// Draft carries the content of a message before it is given an identity.
type Draft struct {
	Text     *string
	ImageRef *string
}

// NewDraft normalizes and validates draft content. Whitespace-only text is
// treated as absent; a draft must carry text or an image.
func NewDraft(text, imageRef *string) (Draft, error) {
	d := Draft{Text: text, ImageRef: imageRef}

	if d.Text != nil {
		trimmed := strings.TrimSpace(*d.Text)
		if trimmed == "" {
			d.Text = nil
		} else {
			d.Text = &trimmed
		}
	}

	if d.Text == nil && d.ImageRef == nil {
		return Draft{}, ErrEmptyMessage
	}

	return d, nil
}

// IsFrom reports whether the message was authored by the given participant.
func (m Message) IsFrom(participantID string) bool {
	return m.SenderID == participantID
}

// HasText reports whether the message carries non-empty text content.
func (m Message) HasText() bool {
	return m.Text != nil && strings.TrimSpace(*m.Text) != ""
}
