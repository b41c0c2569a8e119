package model

import (
	"time"
)

// ConversationStatus represents the interaction state of a conversation.
// The only transitions are Idle -> Active (on send), Active -> Completed
// (reply persisted) or Failed (uncaught error), and Completed/Failed -> Active
// on the next send.
type ConversationStatus string

const (
	ConversationStatusIdle      ConversationStatus = "idle"
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
	ConversationStatusFailed    ConversationStatus = "failed"
)

// Conversation represents one chat thread owned by a user. The externally
// visible identifier is ThreadID (an opaque UUID minted by the client or by
// CreateConversation); the numeric ID stays internal. Conversations are
// created lazily on the first message of a thread and are never deleted,
// only marked inactive after a quiet period.
type Conversation struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	ThreadID      string             `gorm:"uniqueIndex;type:varchar(255);not null" json:"thread_id"`
	UserID        uint               `gorm:"not null;index" json:"user_id"`
	Title         string             `gorm:"type:varchar(255)" json:"title,omitempty"`
	Description   string             `gorm:"type:text" json:"description,omitempty"`
	Status        ConversationStatus `gorm:"type:varchar(50);default:'idle'" json:"status"`
	IsActive      bool               `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	LastMessageAt *time.Time         `json:"last_message_at"`

	// Denormalized message counter; always equals the number of rows in
	// messages for this conversation.
	MessageCount int `gorm:"default:0" json:"message_count"`

	// Progress metadata carried over from the facilitation flow
	ProcessStage         string `gorm:"type:varchar(100)" json:"process_stage,omitempty"`
	CompletionPercentage int    `gorm:"default:0" json:"completion_percentage"`

	// Relationships
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// TableName specifies the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}
