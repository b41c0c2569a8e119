package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
	"github.com/kinnevo/fastinnovation-api/services/filc"
)

// AgentFailureReply is persisted and shown when the agent cannot answer.
const AgentFailureReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// RouterResult is the outcome of one routed message. Err is nil on the happy
// path; a non-nil Err with ErrorType "non_critical" means the reply was
// produced but a bookkeeping step (status update) failed.
type RouterResult struct {
	Content   string
	ThreadID  string
	Err       error
	ErrorType string
}

// StreamEvent is one unit relayed to a streaming consumer.
type StreamEvent struct {
	Chunk    string
	Finished bool
	Err      error
}

// MessageRouter orchestrates one user turn: persist the inbound message,
// call the agent with trimmed history, persist the reply, and keep user and
// conversation statuses moving through the lifecycle.
type MessageRouter struct {
	store    database.Storage
	agent    *filc.Client
	registry *StreamRegistry
}

func NewMessageRouter(store database.Storage, agent *filc.Client, registry *StreamRegistry) *MessageRouter {
	return &MessageRouter{
		store:    store,
		agent:    agent,
		registry: registry,
	}
}

// ProcessUserMessage handles a non-streaming turn. The user message is
// durable before the agent is called; an agent failure still persists a
// fallback reply so the thread's transcript has no holes.
func (r *MessageRouter) ProcessUserMessage(ctx context.Context, email, threadID, content string) *RouterResult {
	start := time.Now()

	saved, err := r.store.SaveMessage(ctx, database.SaveMessageParams{
		Email:    email,
		ThreadID: threadID,
		Content:  content,
		Role:     model.MessageRoleUser,
	})
	if err != nil {
		return &RouterResult{ThreadID: threadID, Err: err, ErrorType: "persistence"}
	}

	r.markActive(ctx, email, threadID)

	history, err := r.store.GetRecentMessages(ctx, threadID, filc.HistoryWindow)
	if err != nil {
		// History is an enhancement; the agent still gets the message.
		log.Printf("[Router] history fetch failed for thread %s: %v", threadID, err)
		history = nil
	}

	result := r.agent.ProcessMessage(ctx, content, threadID, toAgentHistory(history, saved.MessageOrder))

	replyContent := result.Content
	if !result.Success {
		log.Printf("[Router] agent call failed for thread %s: %v", threadID, result.Error)
		replyContent = AgentFailureReply
	}

	elapsed := int(time.Since(start).Milliseconds())
	_, err = r.store.SaveMessage(ctx, database.SaveMessageParams{
		Email:          email,
		ThreadID:       threadID,
		Content:        replyContent,
		Role:           model.MessageRoleAssistant,
		ProcessingTime: &elapsed,
	})
	if err != nil {
		return &RouterResult{ThreadID: threadID, Err: err, ErrorType: "persistence"}
	}

	if !result.Success {
		r.markFailed(ctx, email, threadID)
		return &RouterResult{Content: replyContent, ThreadID: threadID}
	}

	if err := r.markCompleted(ctx, email, threadID); err != nil {
		// The reply is already durable; report but don't fail the turn.
		return &RouterResult{Content: replyContent, ThreadID: threadID, Err: err, ErrorType: "non_critical"}
	}
	return &RouterResult{Content: replyContent, ThreadID: threadID}
}

// ProcessUserMessageStream handles a streaming turn. Chunks are relayed as
// they arrive; the accumulated reply is persisted once the stream finishes.
// An interrupted stream persists whatever partial content arrived and emits
// a terminal error event.
func (r *MessageRouter) ProcessUserMessageStream(ctx context.Context, email, threadID, content string) (<-chan StreamEvent, error) {
	start := time.Now()

	saved, err := r.store.SaveMessage(ctx, database.SaveMessageParams{
		Email:    email,
		ThreadID: threadID,
		Content:  content,
		Role:     model.MessageRoleUser,
	})
	if err != nil {
		return nil, err
	}

	r.markActive(ctx, email, threadID)

	history, err := r.store.GetRecentMessages(ctx, threadID, filc.HistoryWindow)
	if err != nil {
		log.Printf("[Router] history fetch failed for thread %s: %v", threadID, err)
		history = nil
	}

	streamCtx, done := r.registry.Begin(ctx, threadID)
	chunks, err := r.agent.ProcessMessageStream(streamCtx, content, threadID, toAgentHistory(history, saved.MessageOrder))
	if err != nil {
		done()
		r.markFailed(ctx, email, threadID)
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer done()

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-streamCtx.Done():
				return false
			}
		}

		var full string
		for chunk := range chunks {
			full = chunk.FullContent
			if chunk.Err != nil {
				if full != "" {
					// Keep what the user already saw on screen.
					if _, perr := r.store.SaveMessage(ctx, database.SaveMessageParams{
						Email:    email,
						ThreadID: threadID,
						Content:  full,
						Role:     model.MessageRoleAssistant,
					}); perr != nil {
						log.Printf("[Router] failed to persist partial reply for thread %s: %v", threadID, perr)
					}
				}
				r.markFailed(ctx, email, threadID)
				emit(StreamEvent{Err: chunk.Err})
				return
			}
			if chunk.Finished {
				break
			}
			if !emit(StreamEvent{Chunk: chunk.Chunk}) {
				return
			}
		}

		if streamCtx.Err() != nil {
			// Superseded or abandoned; nothing more to persist.
			return
		}

		elapsed := int(time.Since(start).Milliseconds())
		_, err := r.store.SaveMessage(ctx, database.SaveMessageParams{
			Email:          email,
			ThreadID:       threadID,
			Content:        full,
			Role:           model.MessageRoleAssistant,
			ProcessingTime: &elapsed,
		})
		if err != nil {
			log.Printf("[Router] failed to persist streamed reply for thread %s: %v", threadID, err)
			emit(StreamEvent{Err: fmt.Errorf("reply not persisted: %w", err)})
			return
		}

		r.markCompleted(ctx, email, threadID)
		emit(StreamEvent{Finished: true})
	}()

	return events, nil
}

func (r *MessageRouter) markActive(ctx context.Context, email, threadID string) {
	if _, err := r.store.UpdateConversationStatus(ctx, threadID, model.ConversationStatusActive); err != nil {
		log.Printf("[Router] status update (active) failed for thread %s: %v", threadID, err)
	}
	if _, err := r.store.UpdateUserStatus(ctx, email, model.UserStatusActive); err != nil {
		log.Printf("[Router] user status update failed for %s: %v", email, err)
	}
}

func (r *MessageRouter) markCompleted(ctx context.Context, email, threadID string) error {
	if _, err := r.store.UpdateConversationStatus(ctx, threadID, model.ConversationStatusCompleted); err != nil {
		return err
	}
	return nil
}

func (r *MessageRouter) markFailed(ctx context.Context, email, threadID string) {
	if _, err := r.store.UpdateConversationStatus(ctx, threadID, model.ConversationStatusFailed); err != nil {
		log.Printf("[Router] status update (failed) failed for thread %s: %v", threadID, err)
	}
}

// toAgentHistory converts stored rows to the agent wire shape. The entry for
// the just-saved inbound message (at order) is dropped so the agent doesn't
// see the prompt twice.
func toAgentHistory(history []model.HistoryMessage, excludeOrder int) []filc.HistoryEntry {
	entries := make([]filc.HistoryEntry, 0, len(history))
	for i, h := range history {
		if excludeOrder > 0 && i == len(history)-1 {
			// Newest row is the message being routed right now.
			break
		}
		entries = append(entries, filc.HistoryEntry{Role: h.Role, Content: h.Content})
	}
	return entries
}
