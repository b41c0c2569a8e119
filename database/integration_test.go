package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kinnevo/fastinnovation-api/config"
	"github.com/kinnevo/fastinnovation-api/model"
)

// integrationStore connects to the database named by the DB_* environment
// variables. Tests are skipped unless RUN_INTEGRATION_TESTS=true.
func integrationStore(t *testing.T) Storage {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}

	getEnv, err := config.Get()
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	store, err := NewStorage(getEnv)
	if err != nil {
		t.Fatalf("store setup failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func uniqueEmail() string {
	return fmt.Sprintf("it-%s@example.com", uuid.NewString()[:8])
}

func TestSaveMessageAssignsGaplessOrder(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	email := uniqueEmail()
	threadID := uuid.NewString()

	// Concurrent writers to the same thread must still produce 1..N.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.SaveMessage(ctx, SaveMessageParams{
				Email:    email,
				ThreadID: threadID,
				Content:  fmt.Sprintf("message %d", i),
				Role:     model.MessageRoleUser,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent save failed: %v", err)
		}
	}

	history, err := store.GetConversationHistory(ctx, threadID)
	if err != nil {
		t.Fatalf("history read failed: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d messages, got %d", writers, len(history))
	}
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	email := uniqueEmail()
	first, err := store.GetOrCreateUserByEmail(ctx, email, "uid-1", "First")
	if err != nil {
		t.Fatalf("first get-or-create failed: %v", err)
	}
	second, err := store.GetOrCreateUserByEmail(ctx, email, "uid-1", "Second")
	if err != nil {
		t.Fatalf("second get-or-create failed: %v", err)
	}
	if first != second {
		t.Errorf("expected the same user id, got %d and %d", first, second)
	}
}

func TestSaveMessageMaintainsCounters(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	email := uniqueEmail()
	threadID := uuid.NewString()

	for i := 0; i < 3; i++ {
		if _, err := store.SaveMessage(ctx, SaveMessageParams{
			Email:    email,
			ThreadID: threadID,
			Content:  "hello",
			Role:     model.MessageRoleUser,
		}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("user read failed: %v", err)
	}
	if user.TotalMessages != 3 {
		t.Errorf("expected total_messages 3, got %d", user.TotalMessages)
	}
	if user.TotalConversations != 1 {
		t.Errorf("expected total_conversations 1, got %d", user.TotalConversations)
	}

	sessions, err := store.GetChatSessionsForUser(ctx, email)
	if err != nil {
		t.Fatalf("session listing failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].MessageCount != 3 {
		t.Errorf("expected message_count 3, got %d", sessions[0].MessageCount)
	}
	if sessions[0].FirstMessageContent != "hello" {
		t.Errorf("expected first message preview, got %q", sessions[0].FirstMessageContent)
	}
}

func TestSummaryIsAtMostOncePerConversation(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	email := uniqueEmail()
	threadID := uuid.NewString()
	if _, err := store.SaveMessage(ctx, SaveMessageParams{
		Email:    email,
		ThreadID: threadID,
		Content:  "summarize me",
		Role:     model.MessageRoleUser,
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	first, err := store.CreateConversationSummary(ctx, threadID, "the summary", "test-model")
	if err != nil {
		t.Fatalf("first summary failed: %v", err)
	}
	if first == nil {
		t.Fatal("first summary should be created")
	}

	second, err := store.CreateConversationSummary(ctx, threadID, "another summary", "test-model")
	if err != nil {
		t.Fatalf("second summary errored: %v", err)
	}
	if second != nil {
		t.Error("second summary must be a no-op")
	}

	got, err := store.GetSummaryForThread(ctx, threadID)
	if err != nil {
		t.Fatalf("summary read failed: %v", err)
	}
	if got.Summary != "the summary" {
		t.Errorf("expected first summary to win, got %q", got.Summary)
	}
}

func TestUpdateStatusReportsMissingRows(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	updated, err := store.UpdateUserStatus(ctx, uniqueEmail(), model.UserStatusIdle)
	if err != nil {
		t.Fatalf("update errored: %v", err)
	}
	if updated {
		t.Error("updating a missing user must report false, nil")
	}

	updated, err = store.UpdateConversationStatus(ctx, uuid.NewString(), model.ConversationStatusCompleted)
	if err != nil {
		t.Fatalf("update errored: %v", err)
	}
	if updated {
		t.Error("updating a missing conversation must report false, nil")
	}
}

func TestManagerReuseAndReset(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}

	getEnv, err := config.Get()
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	manager := NewManager(getEnv)
	first, err := manager.Get()
	if err != nil {
		t.Fatalf("first get failed: %v", err)
	}
	second, err := manager.Get()
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if first != second {
		t.Error("manager must hand out one shared store")
	}

	if err := manager.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// The old handle fails fast; a fresh Get reconnects.
	if err := first.HealthCheck(); err == nil {
		t.Error("closed store must fail health checks")
	}
	third, err := manager.Get()
	if err != nil {
		t.Fatalf("get after reset failed: %v", err)
	}
	defer manager.Reset()
	if err := third.HealthCheck(); err != nil {
		t.Errorf("fresh store must be healthy: %v", err)
	}
}
