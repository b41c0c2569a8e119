package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/services/filc"
)

// HandleCheckHealth reports the API's view of its dependencies: a live
// database ping plus the agent client's last observed connection state.
func HandleCheckHealth(c *fiber.Ctx, store database.Storage, agent *filc.Client) error {
	dbStatus := "ok"
	status := fiber.StatusOK
	if err := store.HealthCheck(); err != nil {
		dbStatus = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	agentStatus, agentErr, checkedAt := agent.ConnectionState()
	body := fiber.Map{
		"status":   "ok",
		"database": dbStatus,
		"agent": fiber.Map{
			"status":     agentStatus,
			"checked_at": checkedAt,
		},
	}
	if agentErr != "" {
		body["agent"].(fiber.Map)["error"] = agentErr
	}
	if status != fiber.StatusOK {
		body["status"] = "degraded"
	}

	return c.Status(status).JSON(body)
}
