package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
)

// TimeLayout is the serialized timestamp form. Millisecond precision keeps
// snapshots compatible with browser-written ones.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrCorrupt marks a snapshot that could not be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

type wireMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Emotion   string `json:"emotion"`
	CreatedAt string `json:"createdAt"`
}

type wireThread struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Messages    []wireMessage `json:"messages"`
	CreatedAt   string        `json:"createdAt"`
	LastUpdated string        `json:"lastUpdated"`
	TitleSet    bool          `json:"titleSet,omitempty"`
}

// EncodeThreads serializes the thread collection in its current order.
func EncodeThreads(threads []*chat.Thread) (string, error) {
	wire := make([]wireThread, 0, len(threads))
	for _, t := range threads {
		wt := wireThread{
			ID:          t.ID,
			Title:       t.Title,
			Messages:    make([]wireMessage, 0, len(t.Messages)),
			CreatedAt:   formatTime(t.CreatedAt),
			LastUpdated: formatTime(t.LastUpdated),
			TitleSet:    t.TitleSet,
		}
		for _, m := range t.Messages {
			wt.Messages = append(wt.Messages, wireMessage{
				ID:        m.ID,
				Sender:    string(m.Sender),
				Text:      m.Text,
				Emotion:   m.Emotion,
				CreatedAt: formatTime(m.CreatedAt),
			})
		}
		wire = append(wire, wt)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode threads: %w", err)
	}
	return string(data), nil
}

// DecodeThreads parses a serialized thread collection. Any malformed field
// fails the whole snapshot with ErrCorrupt.
func DecodeThreads(raw string) ([]*chat.Thread, error) {
	var wire []wireThread
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	threads := make([]*chat.Thread, 0, len(wire))
	for i, wt := range wire {
		if wt.ID == "" {
			return nil, fmt.Errorf("%w: thread %d has no id", ErrCorrupt, i)
		}
		createdAt, err := parseTime(wt.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: thread %s createdAt: %v", ErrCorrupt, wt.ID, err)
		}
		lastUpdated, err := parseTime(wt.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("%w: thread %s lastUpdated: %v", ErrCorrupt, wt.ID, err)
		}

		thread := &chat.Thread{
			ID:          wt.ID,
			Title:       wt.Title,
			Messages:    make([]chat.Message, 0, len(wt.Messages)),
			CreatedAt:   createdAt,
			LastUpdated: lastUpdated,
			TitleSet:    wt.TitleSet,
		}
		for _, wm := range wt.Messages {
			sender := chat.Sender(wm.Sender)
			if sender != chat.SenderUser && sender != chat.SenderAI {
				return nil, fmt.Errorf("%w: message %s has sender %q", ErrCorrupt, wm.ID, wm.Sender)
			}
			msgCreated, err := parseTime(wm.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: message %s createdAt: %v", ErrCorrupt, wm.ID, err)
			}
			thread.Messages = append(thread.Messages, chat.Message{
				ID:        wm.ID,
				Sender:    sender,
				Text:      wm.Text,
				Emotion:   wm.Emotion,
				CreatedAt: msgCreated,
			})
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
