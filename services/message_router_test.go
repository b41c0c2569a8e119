package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
	"github.com/kinnevo/fastinnovation-api/services/filc"
)

// fakeStore is an in-memory Storage used by router tests.
type fakeStore struct {
	mu          sync.Mutex
	messages    map[string][]model.HistoryMessage
	convStatus  map[string]model.ConversationStatus
	userStatus  map[string]model.UserStatus
	failSaves   bool
	savedOrders map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:    map[string][]model.HistoryMessage{},
		convStatus:  map[string]model.ConversationStatus{},
		userStatus:  map[string]model.UserStatus{},
		savedOrders: map[string]int{},
	}
}

func (f *fakeStore) Init() error        { return nil }
func (f *fakeStore) Close() error       { return nil }
func (f *fakeStore) HealthCheck() error { return nil }

func (f *fakeStore) GetOrCreateUserByEmail(ctx context.Context, email, externalUID, displayName string) (uint, error) {
	return 1, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, database.ErrNotFound
}

func (f *fakeStore) UpdateUserStatus(ctx context.Context, email string, status model.UserStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStatus[email] = status
	return true, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user *model.User) error { return nil }

func (f *fakeStore) ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, userID uint, title string) (string, error) {
	return "new-thread", nil
}

func (f *fakeStore) UpdateConversationStatus(ctx context.Context, threadID string, status model.ConversationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convStatus[threadID] = status
	return true, nil
}

func (f *fakeStore) GetChatSessionsForUser(ctx context.Context, email string) ([]model.ChatSessionSummary, error) {
	return nil, nil
}

func (f *fakeStore) ListConversations(ctx context.Context, page, limit int) ([]model.Conversation, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) MarkConversationsInactive(ctx context.Context, idleMinutes int) (int64, error) {
	return 0, nil
}

func (f *fakeStore) MarkUsersIdle(ctx context.Context, idleMinutes int) (int64, error) {
	return 0, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, params database.SaveMessageParams) (*database.SavedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return nil, database.NewPersistenceError("save_message", fmt.Errorf("pool gone"))
	}
	f.messages[params.ThreadID] = append(f.messages[params.ThreadID], model.HistoryMessage{
		Role:      string(params.Role),
		Content:   params.Content,
		Timestamp: time.Now(),
	})
	order := f.savedOrders[params.ThreadID] + 1
	f.savedOrders[params.ThreadID] = order
	return &database.SavedMessage{MessageID: uint(order), ConversationID: 1, MessageOrder: order}, nil
}

func (f *fakeStore) GetConversationHistory(ctx context.Context, threadID string) ([]model.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.HistoryMessage{}, f.messages[threadID]...), nil
}

func (f *fakeStore) GetRecentMessages(ctx context.Context, threadID string, limit int) ([]model.HistoryMessage, error) {
	return f.GetConversationHistory(ctx, threadID)
}

func (f *fakeStore) CreateConversationSummary(ctx context.Context, threadID, summaryText, modelUsed string) (*model.Summary, error) {
	return nil, nil
}

func (f *fakeStore) GetSummaryForThread(ctx context.Context, threadID string) (*model.Summary, error) {
	return nil, database.ErrNotFound
}

func (f *fakeStore) ListConversationsWithoutSummary(ctx context.Context, limit int) ([]model.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) SaveAnalysis(ctx context.Context, summaryID uint, analysisData []byte, modelUsed string) (*model.Analysis, error) {
	return nil, nil
}

func (f *fakeStore) conversationStatus(threadID string) model.ConversationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convStatus[threadID]
}

func (f *fakeStore) messageCount(threadID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[threadID])
}

func agentServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *filc.Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := filc.NewClient(filc.Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		RetryConfig: &filc.RetryConfig{
			MaxRetries:     0,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	})
	return server, client
}

func TestProcessUserMessageHappyPath(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "agent says hi"}`)
	})
	defer server.Close()

	store := newFakeStore()
	router := NewMessageRouter(store, client, NewStreamRegistry())

	result := router.ProcessUserMessage(context.Background(), "a@b.com", "thread-1", "hello")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Content != "agent says hi" {
		t.Errorf("expected agent reply, got %q", result.Content)
	}

	// Both sides of the turn are persisted.
	if got := store.messageCount("thread-1"); got != 2 {
		t.Errorf("expected 2 persisted messages, got %d", got)
	}
	if got := store.conversationStatus("thread-1"); got != model.ConversationStatusCompleted {
		t.Errorf("expected completed status, got %s", got)
	}
}

func TestProcessUserMessageAgentDownPersistsFallback(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	store := newFakeStore()
	router := NewMessageRouter(store, client, NewStreamRegistry())

	result := router.ProcessUserMessage(context.Background(), "a@b.com", "thread-1", "hello")
	if result.Err != nil {
		t.Fatalf("agent failure must not surface as a router error: %v", result.Err)
	}
	if result.Content != AgentFailureReply {
		t.Errorf("expected fallback reply, got %q", result.Content)
	}

	// Transcript still has no holes and the conversation is marked failed.
	if got := store.messageCount("thread-1"); got != 2 {
		t.Errorf("expected 2 persisted messages, got %d", got)
	}
	if got := store.conversationStatus("thread-1"); got != model.ConversationStatusFailed {
		t.Errorf("expected failed status, got %s", got)
	}
}

func TestProcessUserMessagePersistenceFailure(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "never persisted"}`)
	})
	defer server.Close()

	store := newFakeStore()
	store.failSaves = true
	router := NewMessageRouter(store, client, NewStreamRegistry())

	result := router.ProcessUserMessage(context.Background(), "a@b.com", "thread-1", "hello")
	if result.Err == nil {
		t.Fatal("expected a persistence error")
	}
	if result.ErrorType != "persistence" {
		t.Errorf("expected persistence error type, got %q", result.ErrorType)
	}
}

func TestProcessUserMessageStreamPersistsAccumulatedReply(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agent/chat/stream/optimized":
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"chunk\": \"Hel\", \"finished\": false}\n\n")
			fmt.Fprint(w, "data: {\"chunk\": \"lo\", \"finished\": false}\n\n")
			fmt.Fprint(w, "data: {\"chunk\": \"\", \"finished\": true}\n\n")
		default:
			http.NotFound(w, r)
		}
	})
	defer server.Close()

	store := newFakeStore()
	router := NewMessageRouter(store, client, NewStreamRegistry())

	events, err := router.ProcessUserMessageStream(context.Background(), "a@b.com", "thread-1", "hello")
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var streamed string
	finished := false
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Finished {
			finished = true
			continue
		}
		streamed += ev.Chunk
	}

	if streamed != "Hello" {
		t.Errorf("expected streamed Hello, got %q", streamed)
	}
	if !finished {
		t.Error("expected a finished event")
	}

	history, _ := store.GetConversationHistory(context.Background(), "thread-1")
	if len(history) != 2 {
		t.Fatalf("expected user message and assembled reply, got %d rows", len(history))
	}
	if history[1].Content != "Hello" {
		t.Errorf("expected persisted reply Hello, got %q", history[1].Content)
	}
	if got := store.conversationStatus("thread-1"); got != model.ConversationStatusCompleted {
		t.Errorf("expected completed status, got %s", got)
	}
}

func TestProcessUserMessageStreamCancelReleasesRegistry(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agent/chat/stream/optimized":
			w.Header().Set("Content-Type", "text/event-stream")
			// No finish marker; the relay stays blocked on its consumer.
			fmt.Fprint(w, "data: {\"chunk\": \"Hel\", \"finished\": false}\n\n")
		default:
			http.NotFound(w, r)
		}
	})
	defer server.Close()

	store := newFakeStore()
	registry := NewStreamRegistry()
	router := NewMessageRouter(store, client, registry)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := router.ProcessUserMessageStream(ctx, "a@b.com", "thread-1", "hello")
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}
	if got := registry.ActiveCount(); got != 1 {
		t.Fatalf("expected one live stream, got %d", got)
	}

	// Abandon the channel without draining it, as a vanished client would.
	_ = events
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for registry.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned stream was never released from the registry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessUserMessageStreamHistoryExcludesPrompt(t *testing.T) {
	var histLen atomic.Int32
	histLen.Store(-1)
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agent/chat/stream/optimized":
			var req filc.ChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			histLen.Store(int32(len(req.ConversationHistory)))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"chunk\": \"ok\", \"finished\": false}\n\n")
			fmt.Fprint(w, "data: {\"chunk\": \"\", \"finished\": true}\n\n")
		default:
			http.NotFound(w, r)
		}
	})
	defer server.Close()

	store := newFakeStore()
	router := NewMessageRouter(store, client, NewStreamRegistry())

	events, err := router.ProcessUserMessageStream(context.Background(), "a@b.com", "thread-1", "first question")
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}
	for range events {
	}

	// A first-turn send carries no prior context; the just-saved prompt must
	// not ride along in the history window.
	if got := histLen.Load(); got != 0 {
		t.Errorf("expected empty history on first turn, got %d entries", got)
	}
}

func TestProcessUserMessageStreamInterruptionKeepsPartialReply(t *testing.T) {
	server, client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agent/chat/stream/optimized":
			w.Header().Set("Content-Type", "text/event-stream")
			// Connection closes without a finish marker or [DONE].
			fmt.Fprint(w, "data: {\"chunk\": \"Hel\", \"finished\": false}\n\n")
		default:
			http.NotFound(w, r)
		}
	})
	defer server.Close()

	store := newFakeStore()
	router := NewMessageRouter(store, client, NewStreamRegistry())

	events, err := router.ProcessUserMessageStream(context.Background(), "a@b.com", "thread-1", "hello")
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var terminal error
	for ev := range events {
		if ev.Err != nil {
			terminal = ev.Err
		}
	}
	if terminal == nil {
		t.Fatal("expected a terminal error event for the truncated stream")
	}

	history, _ := store.GetConversationHistory(context.Background(), "thread-1")
	if len(history) != 2 {
		t.Fatalf("expected user message and partial reply, got %d rows", len(history))
	}
	if history[1].Content != "Hel" {
		t.Errorf("expected partial reply to be kept, got %q", history[1].Content)
	}
	if got := store.conversationStatus("thread-1"); got != model.ConversationStatusFailed {
		t.Errorf("expected failed status, got %s", got)
	}
}
