package database

import (
	"context"
	"fmt"

	"github.com/kinnevo/fastinnovation-api/config"
	"github.com/kinnevo/fastinnovation-api/model"
)

// SaveMessageParams carries one message append. ThreadID identifies the
// conversation (created lazily if unknown); Email identifies the user
// (created lazily as well). Optional metadata travels with the row.
type SaveMessageParams struct {
	Email          string
	ExternalUID    string
	DisplayName    string
	ThreadID       string
	Content        string
	Role           model.MessageRole
	ModelUsed      string
	TokenCount     *int
	ProcessingTime *int
}

// SavedMessage reports the outcome of a SaveMessage call.
type SavedMessage struct {
	MessageID      uint
	ConversationID uint
	MessageOrder   int
}

// Storage defines the interface that all database implementations must
// satisfy. PostgreSQLStore (database/sql + lib/pq) and GORMStore behave
// identically with respect to every operation below; the backend is chosen
// once at construction time and never branched on at call sites.
type Storage interface {
	// Lifecycle methods
	Init() error
	Close() error
	HealthCheck() error

	// Users
	GetOrCreateUserByEmail(ctx context.Context, email, externalUID, displayName string) (uint, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserStatus(ctx context.Context, email string, status model.UserStatus) (bool, error)
	CreateUser(ctx context.Context, user *model.User) error
	ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error)

	// Conversations
	CreateConversation(ctx context.Context, userID uint, title string) (string, error)
	UpdateConversationStatus(ctx context.Context, threadID string, status model.ConversationStatus) (bool, error)
	GetChatSessionsForUser(ctx context.Context, email string) ([]model.ChatSessionSummary, error)
	ListConversations(ctx context.Context, page, limit int) ([]model.Conversation, int64, error)
	MarkConversationsInactive(ctx context.Context, idleMinutes int) (int64, error)
	MarkUsersIdle(ctx context.Context, idleMinutes int) (int64, error)

	// Messages
	SaveMessage(ctx context.Context, params SaveMessageParams) (*SavedMessage, error)
	GetConversationHistory(ctx context.Context, threadID string) ([]model.HistoryMessage, error)
	GetRecentMessages(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error)

	// Derived artifacts
	CreateConversationSummary(ctx context.Context, threadID, summaryText, modelUsed string) (*model.Summary, error)
	GetSummaryForThread(ctx context.Context, threadID string) (*model.Summary, error)
	ListConversationsWithoutSummary(ctx context.Context, limit int) ([]model.Conversation, error)
	SaveAnalysis(ctx context.Context, summaryID uint, analysisData []byte, modelUsed string) (*model.Analysis, error)
}

// NewStorage constructs the backend selected by configuration. Construction
// ensures the schema exists before the store is handed out.
func NewStorage(getEnv *config.EnviornmentVariable) (Storage, error) {
	var store Storage
	var err error

	switch getEnv.DB_BACKEND {
	case "pq":
		store, err = Start(getEnv)
	case "gorm", "":
		store, err = StartGORM(getEnv)
	default:
		return nil, fmt.Errorf("unknown DB_BACKEND %q", getEnv.DB_BACKEND)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Init(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// BuildDSN assembles a lib/pq key-value DSN for the configured connection
// strategy: direct TCP, auth proxy on loopback, or unix-socket managed
// connector. Callers stay agnostic of the strategy.
func BuildDSN(getEnv *config.EnviornmentVariable) (string, error) {
	sslMode := getEnv.DB_SSL_MODE
	if sslMode == "" {
		sslMode = "disable"
	}

	switch getEnv.DB_STRATEGY {
	case config.DBStrategyLocal:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv.DB_HOST, getEnv.DB_PORT, getEnv.DB_USER_NAME, getEnv.DB_PASSWORD, getEnv.DB_NAME, sslMode), nil
	case config.DBStrategyProxy:
		return fmt.Sprintf("host=127.0.0.1 port=5432 user=%s password=%s dbname=%s sslmode=disable",
			getEnv.DB_USER_NAME, getEnv.DB_PASSWORD, getEnv.DB_NAME), nil
	case config.DBStrategySocket:
		if getEnv.DB_CONNECTION_NAME == "" {
			return "", fmt.Errorf("DB_CONNECTION_NAME required for socket strategy")
		}
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s",
			getEnv.DB_CONNECTION_NAME, getEnv.DB_USER_NAME, getEnv.DB_PASSWORD, getEnv.DB_NAME), nil
	default:
		return "", fmt.Errorf("unknown DB_STRATEGY %q", getEnv.DB_STRATEGY)
	}
}
