package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/tierly/internal/db"
	"go.uber.org/zap"
)

func (handler *Handler) Health(c *fiber.Ctx) error {
	if err := db.Ping(handler.db); err != nil {
		handler.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
