package admin

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/services"
	"github.com/kinnevo/fastinnovation-api/utils/response"
)

// AdminHandler serves the reporting surface. Read paths degrade: a failing
// query answers with an empty list and a notification instead of a 500, so
// the dashboard stays usable while the database recovers.
type AdminHandler struct {
	store    database.Storage
	exporter *services.ReportExporter // optional; nil disables exports
	summary  *services.SummaryService
}

func NewAdminHandler(store database.Storage, exporter *services.ReportExporter, summary *services.SummaryService) *AdminHandler {
	return &AdminHandler{
		store:    store,
		exporter: exporter,
		summary:  summary,
	}
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	users, total, err := h.store.ListUsers(c.Context(), page, limit)
	if err != nil {
		log.Printf("[Admin] user listing failed: %v", err)
		return response.SuccessWithMessage(c, "User data is temporarily unavailable", []interface{}{})
	}
	return response.Paginated(c, users, page, limit, total)
}

// ListConversations handles GET /api/v1/admin/conversations
func (h *AdminHandler) ListConversations(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	conversations, total, err := h.store.ListConversations(c.Context(), page, limit)
	if err != nil {
		log.Printf("[Admin] conversation listing failed: %v", err)
		return response.SuccessWithMessage(c, "Conversation data is temporarily unavailable", []interface{}{})
	}
	return response.Paginated(c, conversations, page, limit, total)
}

// GetUserSessions handles GET /api/v1/admin/users/:email/sessions
func (h *AdminHandler) GetUserSessions(c *fiber.Ctx) error {
	email := c.Params("email")
	if email == "" {
		return response.BadRequest(c, "Missing email")
	}

	sessions, err := h.store.GetChatSessionsForUser(c.Context(), email)
	if err != nil {
		log.Printf("[Admin] session report failed for %s: %v", email, err)
		return response.SuccessWithMessage(c, "Session data is temporarily unavailable", []interface{}{})
	}
	return response.Success(c, sessions)
}

// GetConversationHistory handles GET /api/v1/admin/conversations/:threadID
func (h *AdminHandler) GetConversationHistory(c *fiber.Ctx) error {
	threadID := c.Params("threadID")
	if threadID == "" {
		return response.BadRequest(c, "Missing thread ID")
	}

	history, err := h.store.GetConversationHistory(c.Context(), threadID)
	if err != nil {
		log.Printf("[Admin] history read failed for thread %s: %v", threadID, err)
		return response.SuccessWithMessage(c, "History is temporarily unavailable", []interface{}{})
	}
	return response.Success(c, history)
}

// GetSummary handles GET /api/v1/admin/conversations/:threadID/summary
func (h *AdminHandler) GetSummary(c *fiber.Ctx) error {
	threadID := c.Params("threadID")
	if threadID == "" {
		return response.BadRequest(c, "Missing thread ID")
	}

	summary, err := h.store.GetSummaryForThread(c.Context(), threadID)
	if database.IsNotFound(err) {
		return response.NotFound(c, "No summary for this conversation")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to load summary")
	}
	return response.Success(c, summary)
}

// GenerateSummary handles POST /api/v1/admin/conversations/:threadID/summary
func (h *AdminHandler) GenerateSummary(c *fiber.Ctx) error {
	threadID := c.Params("threadID")
	if threadID == "" {
		return response.BadRequest(c, "Missing thread ID")
	}

	summary, err := h.summary.GenerateForThread(c.Context(), threadID)
	if database.IsNotFound(err) {
		return response.NotFound(c, "Conversation not found")
	}
	if err != nil {
		return response.InternalServerError(c, "Summary generation failed")
	}
	if summary == nil {
		return response.SuccessWithMessage(c, "Summary already exists or conversation is empty", nil)
	}
	return response.Created(c, summary)
}

// ExportConversations handles POST /api/v1/admin/exports/conversations
func (h *AdminHandler) ExportConversations(c *fiber.Ctx) error {
	if h.exporter == nil {
		return response.ServiceUnavailable(c, "Report exports are not configured")
	}

	url, err := h.exporter.ExportConversations(c.Context())
	if err != nil {
		log.Printf("[Admin] conversation export failed: %v", err)
		return response.InternalServerError(c, "Export failed")
	}
	return response.Success(c, fiber.Map{"url": url})
}

// ExportUsers handles POST /api/v1/admin/exports/users
func (h *AdminHandler) ExportUsers(c *fiber.Ctx) error {
	if h.exporter == nil {
		return response.ServiceUnavailable(c, "Report exports are not configured")
	}

	url, err := h.exporter.ExportUsers(c.Context())
	if err != nil {
		log.Printf("[Admin] user export failed: %v", err)
		return response.InternalServerError(c, "Export failed")
	}
	return response.Success(c, fiber.Map{"url": url})
}
