package chat

import (
	"bufio"
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/services"
	"github.com/kinnevo/fastinnovation-api/utils/cache"
	"github.com/kinnevo/fastinnovation-api/utils/middleware"
	"github.com/kinnevo/fastinnovation-api/utils/response"
	"github.com/kinnevo/fastinnovation-api/utils/sse"
	"github.com/kinnevo/fastinnovation-api/utils/validation"
)

const sessionListCacheTTL = 30 * time.Second

// ChatHandler serves the chat surface: session listing, session creation,
// and message sending in both buffered and streaming modes.
type ChatHandler struct {
	store     database.Storage
	router    *services.MessageRouter
	cache     *cache.RedisCache // optional; nil disables the session-list cache
	validator *validation.Validator
}

func NewChatHandler(store database.Storage, router *services.MessageRouter, redisCache *cache.RedisCache) *ChatHandler {
	return &ChatHandler{
		store:     store,
		router:    router,
		cache:     redisCache,
		validator: validation.NewValidator(),
	}
}

// SendMessageRequest is the POST body for sending one message.
type SendMessageRequest struct {
	ThreadID string `json:"thread_id" validate:"required,max=255"`
	Content  string `json:"content" validate:"required"`
	Stream   bool   `json:"stream"`
}

// CreateSessionRequest is the POST body for creating a session explicitly.
type CreateSessionRequest struct {
	Title string `json:"title" validate:"max=255"`
}

// ListSessions handles GET /api/v1/chat/sessions
func (h *ChatHandler) ListSessions(c *fiber.Ctx) error {
	email := middleware.UserEmail(c)
	if email == "" {
		return response.Unauthorized(c, "User not authenticated")
	}

	cacheKey := "sessions:" + email
	if h.cache != nil {
		var cached []interface{}
		if err := h.cache.GetJSON(c.Context(), cacheKey, &cached); err == nil {
			return response.Success(c, cached)
		}
	}

	sessions, err := h.store.GetChatSessionsForUser(c.Context(), email)
	if err != nil {
		return response.InternalServerError(c, "Failed to list sessions")
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(c.Context(), cacheKey, sessions, sessionListCacheTTL); err != nil {
			log.Printf("[Chat] session list cache write failed: %v", err)
		}
	}

	return response.Success(c, sessions)
}

// CreateSession handles POST /api/v1/chat/sessions
func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	email := middleware.UserEmail(c)
	if email == "" {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	userID, err := h.store.GetOrCreateUserByEmail(c.Context(), email, "", "")
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve user")
	}

	threadID, err := h.store.CreateConversation(c.Context(), userID, req.Title)
	if err != nil {
		return response.InternalServerError(c, "Failed to create session")
	}

	h.invalidateSessionCache(c, email)

	return response.Created(c, fiber.Map{
		"thread_id": threadID,
		"title":     req.Title,
	})
}

// GetHistory handles GET /api/v1/chat/sessions/:threadID/messages
func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	email := middleware.UserEmail(c)
	if email == "" {
		return response.Unauthorized(c, "User not authenticated")
	}

	threadID := c.Params("threadID")
	if threadID == "" {
		return response.BadRequest(c, "Missing thread ID")
	}

	history, err := h.store.GetConversationHistory(c.Context(), threadID)
	if err != nil {
		return response.InternalServerError(c, "Failed to load history")
	}
	return response.Success(c, history)
}

// SendMessage handles POST /api/v1/chat/messages
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	email := middleware.UserEmail(c)
	if email == "" {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	h.invalidateSessionCache(c, email)

	if req.Stream {
		return h.handleStreamMessage(c, email, req.ThreadID, req.Content)
	}

	result := h.router.ProcessUserMessage(c.Context(), email, req.ThreadID, req.Content)
	if result.Err != nil && result.ErrorType != "non_critical" {
		return response.InternalServerError(c, "Failed to process message")
	}

	return response.Success(c, fiber.Map{
		"thread_id": result.ThreadID,
		"response":  result.Content,
	})
}

// handleStreamMessage relays agent chunks to the browser over SSE.
func (h *ChatHandler) handleStreamMessage(c *fiber.Ctx, email, threadID, content string) error {
	// The body writer runs after this handler returns. Cancelling when it
	// exits is what releases the relay for a client that disconnected
	// mid-stream; the request context alone only ends at server shutdown.
	ctx, cancel := context.WithCancel(c.Context())

	events, err := h.router.ProcessUserMessageStream(ctx, email, threadID, content)
	if err != nil {
		cancel()
		return response.ServiceUnavailable(c, "Agent is unavailable")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := sse.Send(w, sse.Event{Event: "start", Data: fiber.Map{"thread_id": threadID}}); err != nil {
			return
		}

		for ev := range events {
			if ev.Err != nil {
				sse.SendError(w, ev.Err.Error())
				return
			}
			if ev.Finished {
				sse.SendComplete(w, fiber.Map{"thread_id": threadID})
				sse.SendDone(w)
				return
			}
			if err := sse.SendChunk(w, ev.Chunk); err != nil {
				// Client went away; the deferred cancel unwinds the relay.
				return
			}
		}
	})

	return nil
}

func (h *ChatHandler) invalidateSessionCache(c *fiber.Ctx, email string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(c.Context(), "sessions:"+email); err != nil {
		log.Printf("[Chat] session cache invalidation failed: %v", err)
	}
}
