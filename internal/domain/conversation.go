package domain

import "time"

// Conversation groups chat messages for one user.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Model     *string   `db:"model" json:"model"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message is one turn in a conversation.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	Model          *string   `db:"model" json:"model"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ConversationUpdate carries the mutable conversation fields; nil means unchanged.
type ConversationUpdate struct {
	Title    *string
	Archived *bool
}
