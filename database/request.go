package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/kinnevo/fastinnovation-api/model"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetOrCreateUserByEmail returns the id of the user with the given email,
// inserting the row first if it does not exist. A concurrent insert losing
// the unique-index race falls back to re-reading the winner's row.
func (s *PostgreSQLStore) GetOrCreateUserByEmail(ctx context.Context, email, externalUID, displayName string) (uint, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	var id uint
	query := `SELECT id FROM users WHERE email = $1;`
	err := s.db.QueryRowContext(ctx, query, email).Scan(&id)
	if err == nil {
		if externalUID != "" {
			// Backfill the external identity on returning users.
			_, _ = s.db.ExecContext(ctx,
				`UPDATE users SET external_uid = $1 WHERE id = $2 AND (external_uid IS NULL OR external_uid = '');`,
				externalUID, id)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, NewPersistenceError("get_or_create_user", err)
	}

	insert := `
		INSERT INTO users (email, external_uid, display_name, status, last_active)
		VALUES ($1, $2, $3, 'active', NOW())
		RETURNING id;
	`
	err = s.db.QueryRowContext(ctx, insert, email, externalUID, displayName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if isUniqueViolation(err) {
		if err := s.db.QueryRowContext(ctx, query, email).Scan(&id); err != nil {
			return 0, NewPersistenceError("get_or_create_user", err)
		}
		return id, nil
	}

	return 0, NewPersistenceError("get_or_create_user", err)
}

func (s *PostgreSQLStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, email, COALESCE(external_uid, ''), COALESCE(display_name, ''),
		       COALESCE(password_hash, ''), role, status, created_at, last_active,
		       is_active, total_conversations, total_messages
		FROM users WHERE email = $1;
	`
	user := new(model.User)
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.ExternalUID,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.LastActive,
		&user.IsActive,
		&user.TotalConversations,
		&user.TotalMessages,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("get_user_by_email", err)
	}
	return user, nil
}

// UpdateUserStatus reports (false, nil) when no user matches: a missing row
// is an expected outcome for status sweeps, not a failure.
func (s *PostgreSQLStore) UpdateUserStatus(ctx context.Context, email string, status model.UserStatus) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	query := `UPDATE users SET status = $1, last_active = NOW() WHERE email = $2;`
	res, err := s.db.ExecContext(ctx, query, status, email)
	if err != nil {
		return false, NewPersistenceError("update_user_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewPersistenceError("update_user_status", err)
	}
	return n > 0, nil
}

func (s *PostgreSQLStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.guard(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (email, external_uid, display_name, password_hash, role, status, last_active)
		VALUES ($1, $2, $3, $4, $5, 'active', NOW())
		RETURNING id, created_at;
	`
	role := user.Role
	if role == "" {
		role = "user"
	}
	err := s.db.QueryRowContext(ctx, query,
		user.Email, user.ExternalUID, user.DisplayName, user.PasswordHash, role,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return NewPersistenceError("create_user", err)
	}
	return nil
}

func (s *PostgreSQLStore) ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&total); err != nil {
		return nil, 0, NewPersistenceError("list_users", err)
	}

	query := `
		SELECT id, email, COALESCE(external_uid, ''), COALESCE(display_name, ''),
		       role, status, created_at, last_active, is_active,
		       total_conversations, total_messages
		FROM users
		ORDER BY last_active DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.QueryContext(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, NewPersistenceError("list_users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		err := rows.Scan(
			&u.ID, &u.Email, &u.ExternalUID, &u.DisplayName,
			&u.Role, &u.Status, &u.CreatedAt, &u.LastActive, &u.IsActive,
			&u.TotalConversations, &u.TotalMessages,
		)
		if err != nil {
			return nil, 0, NewPersistenceError("list_users", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// CreateConversation mints a new thread for the user and returns its ThreadID.
func (s *PostgreSQLStore) CreateConversation(ctx context.Context, userID uint, title string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	threadID := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", NewPersistenceError("create_conversation", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO conversations (thread_id, user_id, title, status)
		VALUES ($1, $2, $3, 'idle');
	`
	if _, err := tx.ExecContext(ctx, query, threadID, userID, title); err != nil {
		return "", NewPersistenceError("create_conversation", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET total_conversations = total_conversations + 1 WHERE id = $1;`, userID); err != nil {
		return "", NewPersistenceError("create_conversation", err)
	}
	if err := tx.Commit(); err != nil {
		return "", NewPersistenceError("create_conversation", err)
	}
	return threadID, nil
}

func (s *PostgreSQLStore) UpdateConversationStatus(ctx context.Context, threadID string, status model.ConversationStatus) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}

	query := `UPDATE conversations SET status = $1, updated_at = NOW() WHERE thread_id = $2;`
	res, err := s.db.ExecContext(ctx, query, status, threadID)
	if err != nil {
		return false, NewPersistenceError("update_conversation_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewPersistenceError("update_conversation_status", err)
	}
	return n > 0, nil
}

// GetChatSessionsForUser lists the user's threads newest-activity-first, each
// carrying the first user message as a preview. Threads that never got a
// message sort last.
func (s *PostgreSQLStore) GetChatSessionsForUser(ctx context.Context, email string) ([]model.ChatSessionSummary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT c.thread_id, COALESCE(c.title, ''), c.created_at, c.last_message_at, c.message_count,
		       COALESCE((
		           SELECT m.content FROM messages m
		           WHERE m.conversation_id = c.id AND m.role = 'user'
		           ORDER BY m.message_order ASC
		           LIMIT 1
		       ), '') AS first_message_content
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		WHERE u.email = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC;
	`
	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, NewPersistenceError("get_chat_sessions", err)
	}
	defer rows.Close()

	sessions := []model.ChatSessionSummary{}
	for rows.Next() {
		var sm model.ChatSessionSummary
		err := rows.Scan(
			&sm.SessionID,
			&sm.Title,
			&sm.CreatedAt,
			&sm.LastMessageTimestamp,
			&sm.MessageCount,
			&sm.FirstMessageContent,
		)
		if err != nil {
			return nil, NewPersistenceError("get_chat_sessions", err)
		}
		sessions = append(sessions, sm)
	}
	return sessions, rows.Err()
}

func (s *PostgreSQLStore) ListConversations(ctx context.Context, page, limit int) ([]model.Conversation, int64, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations;`).Scan(&total); err != nil {
		return nil, 0, NewPersistenceError("list_conversations", err)
	}

	query := `
		SELECT id, thread_id, user_id, COALESCE(title, ''), status, is_active,
		       created_at, updated_at, last_message_at, message_count,
		       COALESCE(process_stage, ''), completion_percentage
		FROM conversations
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.QueryContext(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, NewPersistenceError("list_conversations", err)
	}
	defer rows.Close()

	conversations := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		err := rows.Scan(
			&c.ID, &c.ThreadID, &c.UserID, &c.Title, &c.Status, &c.IsActive,
			&c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt, &c.MessageCount,
			&c.ProcessStage, &c.CompletionPercentage,
		)
		if err != nil {
			return nil, 0, NewPersistenceError("list_conversations", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, total, rows.Err()
}

func (s *PostgreSQLStore) MarkConversationsInactive(ctx context.Context, idleMinutes int) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	query := `
		UPDATE conversations
		SET is_active = FALSE, status = 'idle', updated_at = NOW()
		WHERE is_active = TRUE
		  AND COALESCE(last_message_at, created_at) < NOW() - make_interval(mins => $1);
	`
	res, err := s.db.ExecContext(ctx, query, idleMinutes)
	if err != nil {
		return 0, NewPersistenceError("mark_conversations_inactive", err)
	}
	return res.RowsAffected()
}

func (s *PostgreSQLStore) MarkUsersIdle(ctx context.Context, idleMinutes int) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	query := `
		UPDATE users
		SET status = 'idle'
		WHERE status = 'active'
		  AND last_active < NOW() - make_interval(mins => $1);
	`
	res, err := s.db.ExecContext(ctx, query, idleMinutes)
	if err != nil {
		return 0, NewPersistenceError("mark_users_idle", err)
	}
	return res.RowsAffected()
}

// SaveMessage appends one message inside a single transaction: the
// conversation row is locked FOR UPDATE so message_order stays gapless under
// concurrent writers, and the denormalized counters move in the same commit.
// Missing user or conversation rows are created on the way in.
func (s *PostgreSQLStore) SaveMessage(ctx context.Context, params SaveMessageParams) (*SavedMessage, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	conn, err := s.acquireConn(ctx)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			return nil, err
		}
		return nil, NewPersistenceError("save_message", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewPersistenceError("save_message", err)
	}
	defer tx.Rollback()

	userID, err := ensureUserTx(ctx, tx, params.Email, params.ExternalUID, params.DisplayName)
	if err != nil {
		return nil, NewPersistenceError("save_message", err)
	}

	var conversationID uint
	var messageCount int
	lock := `SELECT id, message_count FROM conversations WHERE thread_id = $1 FOR UPDATE;`
	err = tx.QueryRowContext(ctx, lock, params.ThreadID).Scan(&conversationID, &messageCount)
	if errors.Is(err, sql.ErrNoRows) {
		insert := `
			INSERT INTO conversations (thread_id, user_id, status)
			VALUES ($1, $2, 'active')
			RETURNING id;
		`
		if err := tx.QueryRowContext(ctx, insert, params.ThreadID, userID).Scan(&conversationID); err != nil {
			return nil, NewPersistenceError("save_message", err)
		}
		messageCount = 0
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET total_conversations = total_conversations + 1 WHERE id = $1;`, userID); err != nil {
			return nil, NewPersistenceError("save_message", err)
		}
	} else if err != nil {
		return nil, NewPersistenceError("save_message", err)
	}

	order := messageCount + 1
	var messageID uint
	insertMsg := `
		INSERT INTO messages (conversation_id, user_id, content, role, message_order, token_count, model_used, processing_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;
	`
	err = tx.QueryRowContext(ctx, insertMsg,
		conversationID, userID, params.Content, params.Role, order,
		params.TokenCount, nullableString(params.ModelUsed), params.ProcessingTime,
	).Scan(&messageID)
	if err != nil {
		return nil, NewPersistenceError("save_message", err)
	}

	updateConv := `
		UPDATE conversations
		SET message_count = $1, last_message_at = NOW(), updated_at = NOW(), is_active = TRUE
		WHERE id = $2;
	`
	if _, err := tx.ExecContext(ctx, updateConv, order, conversationID); err != nil {
		return nil, NewPersistenceError("save_message", err)
	}
	updateUser := `
		UPDATE users SET total_messages = total_messages + 1, last_active = NOW() WHERE id = $1;
	`
	if _, err := tx.ExecContext(ctx, updateUser, userID); err != nil {
		return nil, NewPersistenceError("save_message", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewPersistenceError("save_message", err)
	}

	return &SavedMessage{
		MessageID:      messageID,
		ConversationID: conversationID,
		MessageOrder:   order,
	}, nil
}

func (s *PostgreSQLStore) GetConversationHistory(ctx context.Context, threadID string) ([]model.HistoryMessage, error) {
	return s.historyQuery(ctx, threadID, 0)
}

// GetRecentMessages returns the newest `limit` messages in chronological
// order, for trimming the agent's context window.
func (s *PostgreSQLStore) GetRecentMessages(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error) {
	return s.historyQuery(ctx, threadID, limit)
}

func (s *PostgreSQLStore) historyQuery(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.thread_id = $1
		ORDER BY m.message_order ASC;
	`
	args := []interface{}{threadID}
	if limit > 0 {
		query = `
			SELECT role, content, created_at FROM (
				SELECT m.role, m.content, m.created_at, m.message_order
				FROM messages m
				JOIN conversations c ON c.id = m.conversation_id
				WHERE c.thread_id = $1
				ORDER BY m.message_order DESC
				LIMIT $2
			) recent
			ORDER BY message_order ASC;
		`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewPersistenceError("get_conversation_history", err)
	}
	defer rows.Close()

	history := []model.HistoryMessage{}
	for rows.Next() {
		var h model.HistoryMessage
		if err := rows.Scan(&h.Role, &h.Content, &h.Timestamp); err != nil {
			return nil, NewPersistenceError("get_conversation_history", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// CreateConversationSummary stores a summary for the thread. (nil, nil) means
// a summary already exists; generation is at most once per conversation.
func (s *PostgreSQLStore) CreateConversationSummary(ctx context.Context, threadID, summaryText, modelUsed string) (*model.Summary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var conversationID, userID uint
	var title sql.NullString
	var messageCount int
	query := `SELECT id, user_id, title, message_count FROM conversations WHERE thread_id = $1;`
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&conversationID, &userID, &title, &messageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("create_summary", err)
	}

	summary := &model.Summary{
		ConversationID: conversationID,
		UserID:         userID,
		Title:          title.String,
		Summary:        summaryText,
		SummaryType:    "conversation",
		MessageCount:   messageCount,
		ModelUsed:      modelUsed,
	}
	insert := `
		INSERT INTO summaries (conversation_id, user_id, title, summary, message_count, model_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at;
	`
	err = s.db.QueryRowContext(ctx, insert,
		conversationID, userID, nullableString(title.String), summaryText, messageCount, nullableString(modelUsed),
	).Scan(&summary.ID, &summary.CreatedAt)
	if isUniqueViolation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, NewPersistenceError("create_summary", err)
	}
	return summary, nil
}

func (s *PostgreSQLStore) GetSummaryForThread(ctx context.Context, threadID string) (*model.Summary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT s.id, s.conversation_id, s.user_id, COALESCE(s.title, ''), s.summary,
		       s.summary_type, s.created_at, s.message_count, COALESCE(s.model_used, ''), s.token_count
		FROM summaries s
		JOIN conversations c ON c.id = s.conversation_id
		WHERE c.thread_id = $1;
	`
	summary := new(model.Summary)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&summary.ID, &summary.ConversationID, &summary.UserID, &summary.Title, &summary.Summary,
		&summary.SummaryType, &summary.CreatedAt, &summary.MessageCount, &summary.ModelUsed, &summary.TokenCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewPersistenceError("get_summary", err)
	}
	return summary, nil
}

func (s *PostgreSQLStore) ListConversationsWithoutSummary(ctx context.Context, limit int) ([]model.Conversation, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT c.id, c.thread_id, c.user_id, COALESCE(c.title, ''), c.status, c.message_count
		FROM conversations c
		LEFT JOIN summaries s ON s.conversation_id = c.id
		WHERE s.id IS NULL AND c.message_count > 0 AND c.is_active = FALSE
		ORDER BY c.last_message_at ASC NULLS LAST
		LIMIT $1;
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, NewPersistenceError("list_conversations_without_summary", err)
	}
	defer rows.Close()

	conversations := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.ThreadID, &c.UserID, &c.Title, &c.Status, &c.MessageCount); err != nil {
			return nil, NewPersistenceError("list_conversations_without_summary", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// SaveAnalysis upserts the structured insight for a summary; regeneration
// overwrites the previous payload in place.
func (s *PostgreSQLStore) SaveAnalysis(ctx context.Context, summaryID uint, analysisData []byte, modelUsed string) (*model.Analysis, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO analyses (summary_id, analysis_data, model_used)
		VALUES ($1, $2, $3)
		ON CONFLICT (summary_id)
		DO UPDATE SET analysis_data = EXCLUDED.analysis_data, model_used = EXCLUDED.model_used, created_at = NOW()
		RETURNING id, created_at;
	`
	analysis := &model.Analysis{
		SummaryID:    summaryID,
		AnalysisData: analysisData,
		AnalysisType: "comprehensive",
		ModelUsed:    modelUsed,
	}
	err := s.db.QueryRowContext(ctx, query, summaryID, analysisData, nullableString(modelUsed)).
		Scan(&analysis.ID, &analysis.CreatedAt)
	if err != nil {
		return nil, NewPersistenceError("save_analysis", err)
	}
	return analysis, nil
}

func ensureUserTx(ctx context.Context, tx *sql.Tx, email, externalUID, displayName string) (uint, error) {
	var id uint
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1;`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	insert := `
		INSERT INTO users (email, external_uid, display_name, status, last_active)
		VALUES ($1, $2, $3, 'active', NOW())
		ON CONFLICT (email) DO UPDATE SET last_active = NOW()
		RETURNING id;
	`
	if err := tx.QueryRowContext(ctx, insert, email, externalUID, displayName).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
