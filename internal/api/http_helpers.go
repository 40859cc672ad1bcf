package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/tierly/internal/services"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

func apiError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidInput, services.KindConflict:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// serviceError writes err with the status of its kind. Internal failures are
// logged and answered with a generic message.
func (handler *Handler) serviceError(c *fiber.Ctx, operation string, err error) error {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	if kind == services.KindInternal {
		fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
		if userID, ok := currentUserID(c); ok {
			fields = append(fields, zap.Uint("user_id", userID))
		}
		handler.logger.Error("request failed", fields...)
		return apiError(c, status, internalErrorMessage)
	}
	return apiError(c, status, err.Error())
}
