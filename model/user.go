package model

import (
	"time"
)

// UserStatus represents the lifecycle status of a user
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusIdle      UserStatus = "idle"
	UserStatusCompleted UserStatus = "completed"
	UserStatusFailed    UserStatus = "failed"
)

// User represents a chat user, created on first login or first message.
// Users are never hard-deleted; lifecycle is tracked through Status only.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	ExternalUID  string     `gorm:"column:external_uid;type:varchar(128);index" json:"external_uid,omitempty"`
	DisplayName  string     `gorm:"type:varchar(255)" json:"display_name,omitempty"`
	PasswordHash string     `gorm:"type:text" json:"-"` // Never expose password in JSON
	Role         string     `gorm:"type:varchar(20);default:'user'" json:"role"`
	Status       UserStatus `gorm:"type:varchar(50);default:'active';index" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActive   time.Time  `gorm:"index" json:"last_active"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`

	// Denormalized counters, maintained by same-transaction increments
	TotalConversations int `gorm:"default:0" json:"total_conversations"`
	TotalMessages      int `gorm:"default:0" json:"total_messages"`

	// Relationships
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"-"`
	Messages      []Message      `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
