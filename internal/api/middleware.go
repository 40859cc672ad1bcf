package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	userIDHeader     = "x-user-id"
	contextUserIDKey = "current_user_id"
)

func currentUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals(contextUserIDKey).(uint)
	return userID, ok && userID != 0
}

// ObserveRequests counts every request by its matched route so that ids in
// paths never explode label cardinality.
func (handler *Handler) ObserveRequests(c *fiber.Ctx) error {
	startedAt := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if fiberErr, ok := err.(*fiber.Error); ok {
		status = fiberErr.Code
	}
	path := c.Route().Path
	if status == fiber.StatusNotFound && path == "/" {
		path = "unmatched"
	}

	handler.metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
	handler.metrics.ResponseTimeHistogram.WithLabelValues(c.Method(), path).Observe(time.Since(startedAt).Seconds())
	return err
}
