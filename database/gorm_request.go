package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kinnevo/fastinnovation-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GORMStore) GetOrCreateUserByEmail(ctx context.Context, email, externalUID, displayName string) (uint, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		if externalUID != "" && user.ExternalUID == "" {
			s.db.WithContext(ctx).Model(&user).Update("external_uid", externalUID)
		}
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, NewPersistenceError("get_or_create_user", err)
	}

	user = model.User{
		Email:       email,
		ExternalUID: externalUID,
		DisplayName: displayName,
		Role:        "user",
		Status:      model.UserStatusActive,
		LastActive:  time.Now(),
		IsActive:    true,
	}
	err = s.db.WithContext(ctx).Create(&user).Error
	if err == nil {
		return user.ID, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		// Lost the insert race; the winner's row is authoritative.
		var existing model.User
		if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err != nil {
			return 0, NewPersistenceError("get_or_create_user", err)
		}
		return existing.ID, nil
	}
	return 0, NewPersistenceError("get_or_create_user", err)
}

func (s *GORMStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("get_user_by_email", err)
	}
	return &user, nil
}

func (s *GORMStore) UpdateUserStatus(ctx context.Context, email string, status model.UserStatus) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{"status": status, "last_active": time.Now()})
	if res.Error != nil {
		return false, NewPersistenceError("update_user_status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GORMStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.guard(); err != nil {
		return err
	}
	if user.Role == "" {
		user.Role = "user"
	}
	user.Status = model.UserStatusActive
	user.IsActive = true
	user.LastActive = time.Now()

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return NewPersistenceError("create_user", err)
	}
	return nil
}

func (s *GORMStore) ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, NewPersistenceError("list_users", err)
	}

	users := []model.User{}
	err := s.db.WithContext(ctx).
		Order("last_active DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, NewPersistenceError("list_users", err)
	}
	return users, total, nil
}

func (s *GORMStore) CreateConversation(ctx context.Context, userID uint, title string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	threadID := uuid.NewString()
	conversation := model.Conversation{
		ThreadID: threadID,
		UserID:   userID,
		Title:    title,
		Status:   model.ConversationStatusIdle,
		IsActive: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).
			Update("total_conversations", gorm.Expr("total_conversations + 1")).Error
	})
	if err != nil {
		return "", NewPersistenceError("create_conversation", err)
	}
	return threadID, nil
}

func (s *GORMStore) UpdateConversationStatus(ctx context.Context, threadID string, status model.ConversationStatus) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("thread_id = ?", threadID).
		Update("status", status)
	if res.Error != nil {
		return false, NewPersistenceError("update_conversation_status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GORMStore) GetChatSessionsForUser(ctx context.Context, email string) ([]model.ChatSessionSummary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	sessions := []model.ChatSessionSummary{}
	err := s.db.WithContext(ctx).
		Table("conversations AS c").
		Select(`c.thread_id AS session_id,
			COALESCE(c.title, '') AS title,
			c.created_at,
			c.last_message_at AS last_message_timestamp,
			c.message_count,
			COALESCE((
				SELECT m.content FROM messages m
				WHERE m.conversation_id = c.id AND m.role = 'user'
				ORDER BY m.message_order ASC
				LIMIT 1
			), '') AS first_message_content`).
		Joins("JOIN users u ON u.id = c.user_id").
		Where("u.email = ?", email).
		Order("c.last_message_at DESC NULLS LAST, c.created_at DESC").
		Scan(&sessions).Error
	if err != nil {
		return nil, NewPersistenceError("get_chat_sessions", err)
	}
	return sessions, nil
}

func (s *GORMStore) ListConversations(ctx context.Context, page, limit int) ([]model.Conversation, int64, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, NewPersistenceError("list_conversations", err)
	}

	conversations := []model.Conversation{}
	err := s.db.WithContext(ctx).
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&conversations).Error
	if err != nil {
		return nil, 0, NewPersistenceError("list_conversations", err)
	}
	return conversations, total, nil
}

func (s *GORMStore) MarkConversationsInactive(ctx context.Context, idleMinutes int) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(idleMinutes) * time.Minute)
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("is_active = ? AND COALESCE(last_message_at, created_at) < ?", true, cutoff).
		Updates(map[string]interface{}{"is_active": false, "status": model.ConversationStatusIdle})
	if res.Error != nil {
		return 0, NewPersistenceError("mark_conversations_inactive", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GORMStore) MarkUsersIdle(ctx context.Context, idleMinutes int) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(idleMinutes) * time.Minute)
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("status = ? AND last_active < ?", model.UserStatusActive, cutoff).
		Update("status", model.UserStatusIdle)
	if res.Error != nil {
		return 0, NewPersistenceError("mark_users_idle", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GORMStore) SaveMessage(ctx context.Context, params SaveMessageParams) (*SavedMessage, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var saved SavedMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Where("email = ?", params.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = model.User{
				Email:       params.Email,
				ExternalUID: params.ExternalUID,
				DisplayName: params.DisplayName,
				Role:        "user",
				Status:      model.UserStatusActive,
				LastActive:  time.Now(),
				IsActive:    true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		// Row lock on the conversation serializes order assignment.
		var conversation model.Conversation
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("thread_id = ?", params.ThreadID).
			First(&conversation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			conversation = model.Conversation{
				ThreadID: params.ThreadID,
				UserID:   user.ID,
				Status:   model.ConversationStatusActive,
				IsActive: true,
			}
			if err := tx.Create(&conversation).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.User{}).Where("id = ?", user.ID).
				Update("total_conversations", gorm.Expr("total_conversations + 1")).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		order := conversation.MessageCount + 1
		message := model.Message{
			ConversationID: conversation.ID,
			UserID:         user.ID,
			Content:        params.Content,
			Role:           params.Role,
			MessageOrder:   order,
			TokenCount:     params.TokenCount,
			ModelUsed:      params.ModelUsed,
			ProcessingTime: params.ProcessingTime,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		now := time.Now()
		err = tx.Model(&model.Conversation{}).Where("id = ?", conversation.ID).
			Updates(map[string]interface{}{
				"message_count":   order,
				"last_message_at": now,
				"is_active":       true,
			}).Error
		if err != nil {
			return err
		}
		err = tx.Model(&model.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"total_messages": gorm.Expr("total_messages + 1"),
				"last_active":    now,
			}).Error
		if err != nil {
			return err
		}

		saved = SavedMessage{
			MessageID:      message.ID,
			ConversationID: conversation.ID,
			MessageOrder:   order,
		}
		return nil
	})
	if err != nil {
		return nil, NewPersistenceError("save_message", err)
	}
	return &saved, nil
}

func (s *GORMStore) GetConversationHistory(ctx context.Context, threadID string) ([]model.HistoryMessage, error) {
	return s.historyQuery(ctx, threadID, 0)
}

func (s *GORMStore) GetRecentMessages(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error) {
	return s.historyQuery(ctx, threadID, limit)
}

func (s *GORMStore) historyQuery(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Table("messages AS m").
		Select("m.role, m.content, m.created_at AS timestamp, m.message_order").
		Joins("JOIN conversations c ON c.id = m.conversation_id").
		Where("c.thread_id = ?", threadID)

	rows := []model.HistoryMessage{}
	if limit > 0 {
		// Newest N rows, then flipped back to chronological order.
		var reversed []model.HistoryMessage
		if err := query.Order("m.message_order DESC").Limit(limit).Scan(&reversed).Error; err != nil {
			return nil, NewPersistenceError("get_conversation_history", err)
		}
		for i := len(reversed) - 1; i >= 0; i-- {
			rows = append(rows, reversed[i])
		}
		return rows, nil
	}

	if err := query.Order("m.message_order ASC").Scan(&rows).Error; err != nil {
		return nil, NewPersistenceError("get_conversation_history", err)
	}
	return rows, nil
}

func (s *GORMStore) CreateConversationSummary(ctx context.Context, threadID, summaryText, modelUsed string) (*model.Summary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var conversation model.Conversation
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("create_summary", err)
	}

	summary := model.Summary{
		ConversationID: conversation.ID,
		UserID:         conversation.UserID,
		Title:          conversation.Title,
		Summary:        summaryText,
		SummaryType:    "conversation",
		MessageCount:   conversation.MessageCount,
		ModelUsed:      modelUsed,
	}
	err = s.db.WithContext(ctx).Create(&summary).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, NewPersistenceError("create_summary", err)
	}
	return &summary, nil
}

func (s *GORMStore) GetSummaryForThread(ctx context.Context, threadID string) (*model.Summary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var summary model.Summary
	err := s.db.WithContext(ctx).
		Joins("JOIN conversations c ON c.id = summaries.conversation_id").
		Where("c.thread_id = ?", threadID).
		First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("get_summary", err)
	}
	return &summary, nil
}

func (s *GORMStore) ListConversationsWithoutSummary(ctx context.Context, limit int) ([]model.Conversation, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	conversations := []model.Conversation{}
	err := s.db.WithContext(ctx).
		Joins("LEFT JOIN summaries s ON s.conversation_id = conversations.id").
		Where("s.id IS NULL AND conversations.message_count > 0 AND conversations.is_active = ?", false).
		Order("conversations.last_message_at ASC NULLS LAST").
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, NewPersistenceError("list_conversations_without_summary", err)
	}
	return conversations, nil
}

func (s *GORMStore) SaveAnalysis(ctx context.Context, summaryID uint, analysisData []byte, modelUsed string) (*model.Analysis, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	analysis := model.Analysis{
		SummaryID:    summaryID,
		AnalysisData: analysisData,
		AnalysisType: "comprehensive",
		ModelUsed:    modelUsed,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "summary_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"analysis_data", "model_used", "created_at"}),
		}).
		Create(&analysis).Error
	if err != nil {
		return nil, NewPersistenceError("save_analysis", err)
	}
	return &analysis, nil
}
