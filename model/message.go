package model

import (
	"time"
)

// MessageRole represents the role of the message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn in a conversation. Messages are append-only: once
// inserted they are never updated or deleted. MessageOrder is assigned under
// a per-conversation row lock so concurrent writers to one thread still get
// a gapless 1..N sequence.
type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID uint        `gorm:"not null;index" json:"conversation_id"`
	UserID         uint        `gorm:"not null;index" json:"user_id"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Role           MessageRole `gorm:"type:varchar(50);not null" json:"role"`
	CreatedAt      time.Time   `json:"created_at"`
	MessageOrder   int         `gorm:"not null" json:"message_order"`

	// Optional generation metadata
	TokenCount     *int   `json:"token_count,omitempty"`
	ModelUsed      string `gorm:"type:varchar(100)" json:"model_used,omitempty"`
	ProcessingTime *int   `json:"processing_time,omitempty"` // milliseconds

	// Relationships
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	User         User         `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}

// HistoryMessage is the row shape returned by conversation history reads.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSessionSummary is one entry in a user's session listing.
type ChatSessionSummary struct {
	SessionID            string     `json:"session_id"`
	Title                string     `json:"title,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	LastMessageTimestamp *time.Time `json:"last_message_timestamp"`
	MessageCount         int        `json:"message_count"`
	FirstMessageContent  string     `json:"first_message_content,omitempty"`
}
