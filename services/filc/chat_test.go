package filc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(baseURL string, maxRetries int) *Client {
	return NewClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		RetryConfig: &RetryConfig{
			MaxRetries:     maxRetries,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func TestProcessMessageSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing API key header")
		}
		fmt.Fprint(w, `{"response": "hello there"}`)
	}))
	defer server.Close()

	client := testClient(server.URL, 0)
	result := client.ProcessMessage(context.Background(), "hi", "thread-1", nil)

	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.Content != "hello there" {
		t.Errorf("expected reply content, got %q", result.Content)
	}

	status, _, _ := client.ConnectionState()
	if status != StatusConnected {
		t.Errorf("expected connected status, got %s", status)
	}
}

func TestProcessMessageFetchHistorySentinel(t *testing.T) {
	var gotHistory atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotHistory.Store(int32(len(req.ConversationHistory)))
		fmt.Fprint(w, `{"response": "ok"}`)
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		HistorySource: func(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
			if sessionID != "thread-1" {
				t.Errorf("unexpected session id %s", sessionID)
			}
			return []HistoryEntry{
				{Role: "user", Content: "earlier question"},
				{Role: "assistant", Content: "earlier answer"},
			}, nil
		},
	})

	if r := client.ProcessMessage(context.Background(), "hi", "thread-1", FetchHistory); !r.Success {
		t.Fatalf("expected success, got %v", r.Error)
	}
	if got := gotHistory.Load(); got != 2 {
		t.Errorf("expected 2 fetched history entries, got %d", got)
	}

	if r := client.ProcessMessage(context.Background(), "hi", "thread-1", nil); !r.Success {
		t.Fatalf("expected success, got %v", r.Error)
	}
	if got := gotHistory.Load(); got != 0 {
		t.Errorf("expected no history for nil, got %d entries", got)
	}
}

func TestProcessMessageRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	result := client.ProcessMessage(context.Background(), "hi", "thread-1", nil)

	if result.Success {
		t.Fatal("expected failure against erroring server")
	}
	// MaxRetries is the total attempt budget, not extra attempts on top of
	// the first one.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestProcessMessageNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	result := client.ProcessMessage(context.Background(), "hi", "thread-1", nil)

	if result.Success {
		t.Fatal("expected failure on 400")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 attempt on a client error, got %d", got)
	}

	statusErr, ok := asStatusError(result.Error)
	if !ok {
		t.Fatalf("expected StatusError, got %v", result.Error)
	}
	if !statusErr.IsClientError() {
		t.Errorf("expected client error classification for status %d", statusErr.StatusCode)
	}

	status, _, _ := client.ConnectionState()
	if status != StatusErrored {
		t.Errorf("expected errored connection status after a 4xx, got %s", status)
	}
}

func TestProcessMessageUnreachable(t *testing.T) {
	// Point at a closed port.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := testClient(server.URL, 1)
	result := client.ProcessMessage(context.Background(), "hi", "thread-1", nil)

	if result.Success {
		t.Fatal("expected failure against closed server")
	}

	status, errMsg, _ := client.ConnectionState()
	if status != StatusUnreachable {
		t.Errorf("expected unreachable status, got %s (%s)", status, errMsg)
	}
}

func TestProcessMessageStreamChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != streamEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"chunk\": \"Hel\", \"finished\": false}\n\n")
		fmt.Fprint(w, "data: {\"chunk\": \"lo\", \"finished\": false}\n\n")
		fmt.Fprint(w, "data: {\"chunk\": \"\", \"finished\": true}\n\n")
	}))
	defer server.Close()

	client := testClient(server.URL, 0)
	events, err := client.ProcessMessageStream(context.Background(), "hi", "thread-1", nil)
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var content, finalFull string
	finished := false
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Finished {
			finished = true
			finalFull = ev.FullContent
			continue
		}
		content += ev.Chunk
	}

	if content != "Hello" {
		t.Errorf("expected accumulated content Hello, got %q", content)
	}
	if finalFull != "Hello" {
		t.Errorf("expected final event to carry the full text, got %q", finalFull)
	}
	if !finished {
		t.Error("expected a terminal finished event")
	}
}

func TestProcessMessageStreamDoneSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"chunk\": \"partial\", \"finished\": false}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := testClient(server.URL, 0)
	events, err := client.ProcessMessageStream(context.Background(), "hi", "thread-1", nil)
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var content string
	finished := false
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Finished {
			finished = true
			continue
		}
		content += ev.Chunk
	}

	if content != "partial" {
		t.Errorf("expected partial, got %q", content)
	}
	if !finished {
		t.Error("expected [DONE] to finish the stream")
	}
}

func TestProcessMessageStreamInterrupted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunks but no terminal marker before the connection closes.
		fmt.Fprint(w, "data: {\"chunk\": \"cut\", \"finished\": false}\n\n")
	}))
	defer server.Close()

	client := testClient(server.URL, 0)
	events, err := client.ProcessMessageStream(context.Background(), "hi", "thread-1", nil)
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var streamErr error
	for ev := range events {
		if ev.Err != nil {
			streamErr = ev.Err
		}
	}

	if streamErr == nil {
		t.Fatal("expected a terminal error event for an unfinished stream")
	}
}

func TestProcessMessageStreamRawTextLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not json at all\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := testClient(server.URL, 0)
	events, err := client.ProcessMessageStream(context.Background(), "hi", "thread-1", nil)
	if err != nil {
		t.Fatalf("stream setup failed: %v", err)
	}

	var content string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		content += ev.Chunk
	}

	if content != "not json at all" {
		t.Errorf("expected raw text relay, got %q", content)
	}
}

func TestCalculateBackoff(t *testing.T) {
	config := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}

	if got := CalculateBackoff(0, config); got != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := CalculateBackoff(1, config); got != 200*time.Millisecond {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := CalculateBackoff(2, config); got != 400*time.Millisecond {
		t.Errorf("attempt 2: got %v", got)
	}
	// Capped at MaxBackoff.
	if got := CalculateBackoff(10, config); got != time.Second {
		t.Errorf("attempt 10: got %v", got)
	}
}

func TestTrimHistory(t *testing.T) {
	long := make([]HistoryEntry, HistoryWindow+7)
	for i := range long {
		long[i] = HistoryEntry{Role: "user", Content: fmt.Sprintf("m%d", i)}
	}

	trimmed := TrimHistory(long)
	if len(trimmed) != HistoryWindow {
		t.Fatalf("expected %d entries, got %d", HistoryWindow, len(trimmed))
	}
	if trimmed[len(trimmed)-1].Content != long[len(long)-1].Content {
		t.Error("expected the newest entries to survive trimming")
	}

	short := []HistoryEntry{{Role: "user", Content: "only"}}
	if got := TrimHistory(short); len(got) != 1 {
		t.Errorf("short history should be untouched, got %d entries", len(got))
	}
}
