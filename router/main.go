package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kinnevo/fastinnovation-api/config"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/handlers"
	admin_handlers "github.com/kinnevo/fastinnovation-api/handlers/admin"
	auth_handlers "github.com/kinnevo/fastinnovation-api/handlers/auth"
	chat_handlers "github.com/kinnevo/fastinnovation-api/handlers/chat"
	"github.com/kinnevo/fastinnovation-api/services"
	"github.com/kinnevo/fastinnovation-api/services/filc"
	"github.com/kinnevo/fastinnovation-api/utils/auth"
	"github.com/kinnevo/fastinnovation-api/utils/cache"
	"github.com/kinnevo/fastinnovation-api/utils/middleware"
)

// Dependencies carries everything the route tree needs; app setup builds it
// once so no handler reaches for globals.
type Dependencies struct {
	Env           *config.EnviornmentVariable
	Store         database.Storage
	Agent         *filc.Client
	MessageRouter *services.MessageRouter
	Summary       *services.SummaryService
	Exporter      *services.ReportExporter
	Cache         *cache.RedisCache
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	jwtIssuer := deps.Env.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "fastinnovation-api"
	}
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: deps.Env.JWT_SECRET,
		Expiry: 24 * time.Hour,
		Issuer: jwtIssuer,
	})
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	authHandler := auth_handlers.NewAuthHandler(deps.Store, jwtManager)
	chatHandler := chat_handlers.NewChatHandler(deps.Store, deps.MessageRouter, deps.Cache)
	adminHandler := admin_handlers.NewAdminHandler(deps.Store, deps.Exporter, deps.Summary)

	app.Get("/health", func(c *fiber.Ctx) error {
		return handlers.HandleCheckHealth(c, deps.Store, deps.Agent)
	})

	v1 := app.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	chatGroup := v1.Group("/chat", authMiddleware.Required())
	chatGroup.Get("/sessions", chatHandler.ListSessions)
	chatGroup.Post("/sessions", chatHandler.CreateSession)
	chatGroup.Get("/sessions/:threadID/messages", chatHandler.GetHistory)
	chatGroup.Post("/messages", chatHandler.SendMessage)

	adminGroup := v1.Group("/admin", authMiddleware.Required(), authMiddleware.AdminOnly())
	adminGroup.Get("/users", adminHandler.ListUsers)
	adminGroup.Get("/users/:email/sessions", adminHandler.GetUserSessions)
	adminGroup.Get("/conversations", adminHandler.ListConversations)
	adminGroup.Get("/conversations/:threadID", adminHandler.GetConversationHistory)
	adminGroup.Get("/conversations/:threadID/summary", adminHandler.GetSummary)
	adminGroup.Post("/conversations/:threadID/summary", adminHandler.GenerateSummary)
	adminGroup.Post("/exports/conversations", adminHandler.ExportConversations)
	adminGroup.Post("/exports/users", adminHandler.ExportUsers)
}
