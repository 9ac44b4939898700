package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one turn in a thread. Emotion keeps the raw label as received.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage stamps a message with a fresh ULID and the given creation time.
func NewMessage(sender Sender, text, emotion string, now time.Time) Message {
	return Message{
		ID:        ulid.Make().String(),
		Sender:    sender,
		Text:      text,
		Emotion:   emotion,
		CreatedAt: now,
	}
}

// Role maps the sender onto the role names used by the inference endpoint.
func (m Message) Role() string {
	if m.Sender == SenderUser {
		return "user"
	}
	return "ai"
}

// Turn is a message reduced to what an inference backend sees.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn converts the message for an inference request.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role(), Content: m.Text}
}

// Turns converts a message slice, preserving order.
func Turns(messages []Message) []Turn {
	out := make([]Turn, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Turn())
	}
	return out
}
