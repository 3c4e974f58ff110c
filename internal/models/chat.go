package models

import "time"

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry in the conversation transcript. User messages are
// immutable once appended; an assistant message transitions from pending to
// exactly one of resolved or error.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Pending   bool      `json:"pending,omitempty"`
	Error     bool      `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
