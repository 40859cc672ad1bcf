package services

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terraincognita07/tierly/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	BillingEventInitialPurchase = "INITIAL_PURCHASE"
	BillingEventRenewal         = "RENEWAL"
	BillingEventProductChange   = "PRODUCT_CHANGE"
	BillingEventUncancellation  = "UNCANCELLATION"
	BillingEventCancellation    = "CANCELLATION"
	BillingEventExpiration      = "EXPIRATION"
	BillingEventBillingIssue    = "BILLING_ISSUE"
	BillingEventSubscriberAlias = "SUBSCRIBER_ALIAS"
	BillingEventTransfer        = "TRANSFER"
)

type BillingUserRepository interface {
	FindByID(ctx context.Context, userID uint) (models.User, error)
	UpdateByID(ctx context.Context, userID uint, updates map[string]any) error
}

type BillingEventRepository interface {
	Record(ctx context.Context, event *models.BillingEvent) (bool, error)
}

// AppUserID accepts the provider's user id as a JSON string or number.
type AppUserID string

func (id *AppUserID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*id = AppUserID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	*id = AppUserID(number.String())
	return nil
}

type BillingEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	AppUserID      AppUserID `json:"app_user_id"`
	ProductID      string    `json:"product_id"`
	ExpirationAtMs *int64    `json:"expiration_at_ms"`
}

type WebhookPayload struct {
	Event BillingEvent `json:"event"`
}

// ParseWebhookPayload decodes a webhook body. Only undecodable JSON is an
// error; missing fields are left for ApplyBillingEvent to ignore.
func ParseWebhookPayload(body []byte) (BillingEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return BillingEvent{}, fmt.Errorf("%w: %v", ErrInvalidBillingEvent, err)
	}
	return payload.Event, nil
}

// ExpirationAt converts expiration_at_ms to a UTC time. Absent means no tracked expiry.
func (event BillingEvent) ExpirationAt() *time.Time {
	if event.ExpirationAtMs == nil {
		return nil
	}
	expiration := time.UnixMilli(*event.ExpirationAtMs).UTC()
	return &expiration
}

type ReconcileResult struct {
	EventID  string
	Outcome  string
	UserID   uint
	Tier     models.Tier
	Recorded bool
}

type SubscriptionReconciler struct {
	users         BillingUserRepository
	events        BillingEventRepository
	webhookSecret string
	logger        *zap.Logger
}

func NewSubscriptionReconciler(users BillingUserRepository, events BillingEventRepository, webhookSecret string, logger *zap.Logger) *SubscriptionReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionReconciler{
		users:         users,
		events:        events,
		webhookSecret: strings.TrimSpace(webhookSecret),
		logger:        logger.Named("billing"),
	}
}

// Authorize checks the Authorization header against the configured secret,
// bare or as a bearer token. Without a secret every request is accepted.
func (service *SubscriptionReconciler) Authorize(header string) error {
	if service.webhookSecret == "" {
		return nil
	}

	provided := strings.TrimSpace(header)
	if len(provided) > len("bearer ") && strings.EqualFold(provided[:len("bearer ")], "bearer ") {
		provided = strings.TrimSpace(provided[len("bearer "):])
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(service.webhookSecret)) != 1 {
		return ErrWebhookUnauthorized
	}
	return nil
}

// ApplyBillingEvent writes the absolute subscription state the event implies.
// Events for unknown users and irrelevant types are acknowledged without
// changes; only store failures return an error.
func (service *SubscriptionReconciler) ApplyBillingEvent(ctx context.Context, event BillingEvent, now time.Time) (ReconcileResult, error) {
	result := ReconcileResult{EventID: strings.TrimSpace(event.ID)}
	if result.EventID == "" {
		result.EventID = uuid.NewString()
	}

	eventType := strings.ToUpper(strings.TrimSpace(event.Type))
	logger := service.logger.With(
		zap.String("event_id", result.EventID),
		zap.String("type", eventType),
		zap.String("app_user_id", string(event.AppUserID)),
	)

	outcome, err := service.apply(ctx, eventType, event, &result, logger)
	if err != nil {
		logger.Error("billing event failed", zap.Error(err))
		return ReconcileResult{}, err
	}
	result.Outcome = outcome

	recorded, err := service.events.Record(ctx, &models.BillingEvent{
		EventID:      result.EventID,
		Type:         eventType,
		AppUserID:    string(event.AppUserID),
		ProductID:    event.ProductID,
		ExpirationAt: event.ExpirationAt(),
		Outcome:      outcome,
		ReceivedAt:   now,
	})
	if err != nil {
		logger.Error("record billing event failed", zap.Error(err))
		return ReconcileResult{}, fmt.Errorf("record billing event: %w", err)
	}
	result.Recorded = recorded

	logger.Info("billing event processed", zap.String("outcome", outcome), zap.Bool("first_delivery", recorded))
	return result, nil
}

func (service *SubscriptionReconciler) apply(ctx context.Context, eventType string, event BillingEvent, result *ReconcileResult, logger *zap.Logger) (string, error) {
	userID, err := strconv.ParseUint(strings.TrimSpace(string(event.AppUserID)), 10, 64)
	if err != nil || userID == 0 {
		logger.Info("billing event for foreign user id ignored")
		return models.BillingOutcomeIgnoredUser, nil
	}

	user, err := service.users.FindByID(ctx, uint(userID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Info("billing event for unknown user ignored")
		return models.BillingOutcomeIgnoredUser, nil
	}
	if err != nil {
		return "", fmt.Errorf("load billing user: %w", err)
	}
	result.UserID = user.ID
	result.Tier = user.SubscriptionTier

	var updates map[string]any
	switch eventType {
	case BillingEventInitialPurchase, BillingEventRenewal, BillingEventProductChange, BillingEventUncancellation:
		tier := MapProductTier(event.ProductID)
		expiration := event.ExpirationAt()
		updates = map[string]any{
			"current_plan":            event.ProductID,
			"next_billing_date":       expiration,
			"subscription_tier":       tier,
			"subscription_status":     models.SubscriptionStatusActive,
			"subscription_expiry":     expiration,
			"subscription_product_id": event.ProductID,
		}
		result.Tier = tier
	case BillingEventCancellation:
		updates = map[string]any{"subscription_status": models.SubscriptionStatusCancelled}
	case BillingEventExpiration, BillingEventBillingIssue:
		updates = map[string]any{
			"current_plan":            nil,
			"next_billing_date":       nil,
			"subscription_tier":       models.TierFree,
			"subscription_status":     models.SubscriptionStatusExpired,
			"subscription_expiry":     nil,
			"subscription_product_id": nil,
		}
		result.Tier = models.TierFree
	case BillingEventSubscriberAlias, BillingEventTransfer:
		logger.Info("billing event logged without changes")
		return models.BillingOutcomeLogged, nil
	default:
		logger.Info("unhandled billing event type")
		return models.BillingOutcomeIgnoredType, nil
	}

	if err := service.users.UpdateByID(ctx, user.ID, updates); err != nil {
		return "", fmt.Errorf("update subscription: %w", err)
	}
	return models.BillingOutcomeApplied, nil
}
