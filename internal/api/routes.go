package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

func RegisterRoutes(app *fiber.App, handler *Handler) {
	app.Use(handler.ObserveRequests)
	registerServiceRoutes(app, handler)
	registerAPIRoutes(app, handler)
}

func registerServiceRoutes(app *fiber.App, handler *Handler) {
	app.Get("/healthz", handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(handler.metrics.Handler()))
}

func registerAPIRoutes(app *fiber.App, handler *Handler) {
	api := app.Group("/api")

	api.Get("/referrals", handler.GetReferrals)
	api.Post("/referrals", handler.UserRequired, handler.PostReferrals)

	webhooks := api.Group("/webhooks")
	webhooks.Get("/revenuecat", handler.RevenueCatStatus)
	webhooks.Post("/revenuecat", handler.RevenueCatWebhook)
}
