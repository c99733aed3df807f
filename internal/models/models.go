package models

import "time"

// Task statuses. Transitions are one-directional: pending -> completed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Message roles persisted to the conversation log. Tool-internal turns
// are never written to the user-visible log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Task is a user-owned todo item. Every storage operation on tasks is
// filtered by UserID.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	UserID      string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation is the single active chat thread of a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a conversation, append-only and ordered by
// creation time.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is a row from the externally managed session table. The token
// is the bearer credential presented by the client.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
// A zero ExpiresAt means the row carries no expiry and is treated as valid.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}
