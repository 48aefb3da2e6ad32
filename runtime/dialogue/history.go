package dialogue

import (
	"time"
)

// DefaultHistoryLimit bounds the messages kept for the engine.
const DefaultHistoryLimit = 64

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Tool    string    `json:"tool,omitempty"`
	At      time.Time `json:"at"`
}

// History is a bounded, in-memory transcript. It is owned by the session
// loop and not safe for concurrent use.
type History struct {
	limit int
	msgs  []Message
}

// NewHistory creates a history keeping at most limit messages.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append adds messages, dropping the oldest beyond the limit.
func (h *History) Append(msgs ...Message) {
	h.msgs = append(h.msgs, msgs...)
	if over := len(h.msgs) - h.limit; over > 0 {
		h.msgs = append(h.msgs[:0:0], h.msgs[over:]...)
	}
}

// Messages returns a copy of the transcript.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.msgs...)
}

// Len returns the number of messages kept.
func (h *History) Len() int {
	return len(h.msgs)
}
