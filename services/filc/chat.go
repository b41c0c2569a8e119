package filc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	chatEndpoint   = "/api/v1/agent/chat/optimized"
	streamEndpoint = "/api/v1/agent/chat/stream/optimized"

	// HistoryWindow is how many messages of conversation history ride along
	// with each request (10 exchanges).
	HistoryWindow = 20
)

// HistoryEntry is one prior turn sent as agent context.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FetchHistory asks ProcessMessage/ProcessMessageStream to load recent
// context from the client's HistorySource. Passing nil means "new
// conversation, no history"; passing FetchHistory means "existing
// conversation, fetch context".
var FetchHistory = make([]HistoryEntry, 0)

func (c *Client) resolveHistory(ctx context.Context, sessionID string, history []HistoryEntry) []HistoryEntry {
	if history == nil || len(history) > 0 {
		return TrimHistory(history)
	}
	if c.historySource == nil {
		return nil
	}
	fetched, err := c.historySource(ctx, sessionID, HistoryWindow)
	if err != nil {
		log.Printf("[FILC] history fetch failed for session %s: %v", sessionID, err)
		return nil
	}
	return TrimHistory(fetched)
}

// ChatRequest is the wire shape of a FILC chat call.
type ChatRequest struct {
	Message             string                 `json:"message"`
	SessionID           string                 `json:"session_id"`
	Context             map[string]interface{} `json:"context"`
	ConversationHistory []HistoryEntry         `json:"conversation_history,omitempty"`
}

// ChatResponse is the non-streaming response envelope.
type ChatResponse struct {
	Response string `json:"response"`
}

// AgentResult is the outcome of a single-shot agent call. On failure Content
// is empty and Error carries the cause.
type AgentResult struct {
	Content string
	Success bool
	Error   error
}

// ChunkEvent is one unit of a streaming response. Chunk carries the new
// delta and FullContent everything received so far, so consumers can take
// the final event's text without accumulating themselves. Exactly one
// terminal event arrives per stream: Finished for a clean end, or Err for an
// interruption (with FullContent holding the partial text).
type ChunkEvent struct {
	Chunk       string
	FullContent string
	Finished    bool
	Err         error
}

// streamChunk is the wire shape of one SSE data line.
type streamChunk struct {
	Chunk    string `json:"chunk"`
	Finished bool   `json:"finished"`
}

// TrimHistory keeps the newest HistoryWindow entries.
func TrimHistory(history []HistoryEntry) []HistoryEntry {
	if len(history) <= HistoryWindow {
		return history
	}
	return history[len(history)-HistoryWindow:]
}

// ProcessMessage sends one user message and waits for the full reply.
// Transport failures and 5xx responses are retried with exponential backoff;
// 4xx responses fail immediately. The result is never nil: callers branch on
// Success rather than a returned error so a dead agent degrades gracefully.
func (c *Client) ProcessMessage(ctx context.Context, message, sessionID string, history []HistoryEntry) *AgentResult {
	req := ChatRequest{
		Message:             message,
		SessionID:           sessionID,
		Context:             map[string]interface{}{},
		ConversationHistory: c.resolveHistory(ctx, sessionID, history),
	}

	// MaxRetries is the total attempt budget, matching the agent contract:
	// a refusing agent sees exactly MaxRetries requests.
	attempts := c.retryConfig.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := CalculateBackoff(attempt-1, c.retryConfig)
			log.Printf("[FILC] retrying chat request (attempt %d/%d) after %v", attempt+1, attempts, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = classifyTransportError(ctx.Err())
				c.observe(lastErr)
				return &AgentResult{Success: false, Error: lastErr}
			}
		}

		content, err := c.doChat(ctx, req)
		if err == nil {
			c.observe(nil)
			return &AgentResult{Content: content, Success: true}
		}
		lastErr = err
		c.observe(err)
		if !IsRetryable(err) {
			break
		}
	}

	return &AgentResult{Success: false, Error: lastErr}
}

func (c *Client) doChat(ctx context.Context, req ChatRequest) (string, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatEndpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var parsed ChatResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Response != "" {
		return parsed.Response, nil
	}
	// Older agent deployments answer in other envelope shapes.
	return ExtractResponseText(respBody), nil
}

// ProcessMessageStream sends one user message and returns a channel of
// chunks. The channel always closes after a terminal event. Cancel ctx to
// abandon the stream early.
func (c *Client) ProcessMessageStream(ctx context.Context, message, sessionID string, history []HistoryEntry) (<-chan ChunkEvent, error) {
	req := ChatRequest{
		Message:             message,
		SessionID:           sessionID,
		Context:             map[string]interface{}{},
		ConversationHistory: c.resolveHistory(ctx, sessionID, history),
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamEndpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamingClient.Do(httpReq)
	if err != nil {
		wrapped := classifyTransportError(err)
		c.observe(wrapped)
		return nil, wrapped
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
		c.observe(statusErr)
		return nil, statusErr
	}
	c.observe(nil)

	events := make(chan ChunkEvent)
	go c.readStream(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) readStream(ctx context.Context, body io.ReadCloser, events chan<- ChunkEvent) {
	defer close(events)
	defer body.Close()

	emit := func(ev ChunkEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var full strings.Builder
	finished := false
	chunkCount := 0
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		data := line
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}

		if data == "[DONE]" {
			finished = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Not a JSON envelope; relay the raw text as content.
			full.WriteString(data)
			if !emit(ChunkEvent{Chunk: data, FullContent: full.String()}) {
				return
			}
			chunkCount++
			continue
		}

		if chunk.Chunk != "" {
			full.WriteString(chunk.Chunk)
			if !emit(ChunkEvent{Chunk: chunk.Chunk, FullContent: full.String()}) {
				return
			}
			chunkCount++
		}
		if chunk.Finished {
			finished = true
			break
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("[FILC Stream] scanner error after %d chunks: %v", chunkCount, err)
		interrupted := fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		c.observe(interrupted)
		emit(ChunkEvent{Err: interrupted, FullContent: full.String()})
		return
	}

	if !finished {
		// Server closed the connection without a terminal marker.
		interrupted := fmt.Errorf("%w: stream ended without finish marker", ErrStreamInterrupted)
		c.observe(interrupted)
		emit(ChunkEvent{Err: interrupted, FullContent: full.String()})
		return
	}

	emit(ChunkEvent{Finished: true, FullContent: full.String()})
}

func truncateBody(body []byte) string {
	const max = 512
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
