package chat

import "time"

// DefaultTitle is carried by every thread until its first user message.
const DefaultTitle = "New Chat"

// Thread is an independent, ordered conversation.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	// TitleSet records that the title no longer needs deriving.
	TitleSet bool `json:"titleSet,omitempty"`
}

// ThreadSummary is the navigable entry shown in thread lists.
type ThreadSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Summary returns the list entry for the thread.
func (t *Thread) Summary() ThreadSummary {
	return ThreadSummary{ID: t.ID, Title: t.Title, LastUpdated: t.LastUpdated}
}

// Touch advances LastUpdated, never letting it move backwards or stand still.
func (t *Thread) Touch(now time.Time) {
	if !now.After(t.LastUpdated) {
		now = t.LastUpdated.Add(time.Millisecond)
	}
	t.LastUpdated = now
}

// Clone returns a deep copy safe to hand outside the owning session.
func (t *Thread) Clone() *Thread {
	cp := *t
	cp.Messages = append([]Message(nil), t.Messages...)
	return &cp
}
