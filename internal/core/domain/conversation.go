package domain

import "time"

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one transcript row. Append-only; sources are recorded on
// assistant messages only.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Sources        []Source    `json:"sources,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
