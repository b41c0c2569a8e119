package model

import (
	"time"

	"gorm.io/datatypes"
)

// Summary is a derived artifact over a conversation's full message set,
// generated at most once per conversation.
type Summary struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;uniqueIndex" json:"conversation_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Title          string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	SummaryType    string    `gorm:"type:varchar(50);default:'conversation'" json:"summary_type"`
	CreatedAt      time.Time `json:"created_at"`

	// Provenance
	MessageCount int    `gorm:"not null" json:"message_count"`
	ModelUsed    string `gorm:"type:varchar(100)" json:"model_used,omitempty"`
	TokenCount   *int   `json:"token_count,omitempty"`

	// Relationships
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	User         User         `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for Summary
func (Summary) TableName() string {
	return "summaries"
}

// Analysis is the structured insight extracted from a summary. At most one
// analysis exists per summary; regeneration overwrites in place.
type Analysis struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SummaryID    uint           `gorm:"not null;uniqueIndex" json:"summary_id"`
	AnalysisData datatypes.JSON `gorm:"type:jsonb;not null" json:"analysis_data"`
	AnalysisType string         `gorm:"type:varchar(50);default:'comprehensive'" json:"analysis_type"`
	CreatedAt    time.Time      `json:"created_at"`
	ModelUsed    string         `gorm:"type:varchar(100)" json:"model_used,omitempty"`

	// Relationships
	Summary Summary `gorm:"foreignKey:SummaryID" json:"-"`
}

// TableName specifies the table name for Analysis
func (Analysis) TableName() string {
	return "analyses"
}

// TopicSentiment is one topic discussed in a conversation with its sentiment.
type TopicSentiment struct {
	Topic      string `json:"topic"`
	Sentiment  string `json:"sentiment"` // positive, negative, neutral, mixed
	Importance int    `json:"importance"`
}

// ConversationInsight is the JSON payload stored in analyses.analysis_data.
type ConversationInsight struct {
	MainIntent       string           `json:"main_intent"`
	Topics           []TopicSentiment `json:"topics"`
	UserSatisfaction int              `json:"user_satisfaction"` // 1-5
	KeyQuestions     []string         `json:"key_questions"`
	ActionItems      []string         `json:"action_items"`
	ConversationType string           `json:"conversation_type"`
}
