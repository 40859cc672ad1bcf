package api

import "github.com/gofiber/fiber/v2"

func (handler *Handler) UserRequired(c *fiber.Ctx) error {
	userID, err := handler.resolveUserID(c)
	if err != nil {
		return apiError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	c.Locals(contextUserIDKey, userID)
	return c.Next()
}
