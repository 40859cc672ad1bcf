package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/tierly/internal/services"
)

var knownBillingEventTypes = map[string]struct{}{
	services.BillingEventInitialPurchase: {},
	services.BillingEventRenewal:         {},
	services.BillingEventProductChange:   {},
	services.BillingEventUncancellation:  {},
	services.BillingEventCancellation:    {},
	services.BillingEventExpiration:      {},
	services.BillingEventBillingIssue:    {},
	services.BillingEventSubscriberAlias: {},
	services.BillingEventTransfer:        {},
}

func (handler *Handler) RevenueCatStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "webhook": "revenuecat"})
}

// RevenueCatWebhook acknowledges every authorized, well-formed delivery so the
// provider only retries on genuine failures.
func (handler *Handler) RevenueCatWebhook(c *fiber.Ctx) error {
	if err := handler.billing.Authorize(c.Get(fiber.HeaderAuthorization)); err != nil {
		handler.metrics.BillingEvents.WithLabelValues("unknown", "unauthorized").Inc()
		return apiError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	event, err := services.ParseWebhookPayload(c.Body())
	if err != nil {
		handler.metrics.BillingEvents.WithLabelValues("unknown", "invalid").Inc()
		return apiError(c, fiber.StatusBadRequest, "invalid webhook payload")
	}

	result, err := handler.billing.ApplyBillingEvent(c.UserContext(), event, handler.now())
	if err != nil {
		handler.metrics.BillingEvents.WithLabelValues(billingEventLabel(event.Type), "failed").Inc()
		return handler.serviceError(c, "apply billing event", err)
	}

	handler.metrics.BillingEvents.WithLabelValues(billingEventLabel(event.Type), result.Outcome).Inc()
	return c.JSON(fiber.Map{"received": true})
}

// billingEventLabel keeps provider-controlled type strings out of metric labels.
func billingEventLabel(eventType string) string {
	normalized := strings.ToUpper(strings.TrimSpace(eventType))
	if _, ok := knownBillingEventTypes[normalized]; ok {
		return normalized
	}
	return "other"
}
