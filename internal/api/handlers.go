package api

import (
	"errors"
	"strings"
	"time"

	"github.com/terraincognita07/tierly/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewHandler(database *gorm.DB, options Options) (*Handler, error) {
	if database == nil {
		return nil, errors.New("database is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlerMetrics := options.Metrics
	if handlerMetrics == nil {
		handlerMetrics = metrics.New()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	limit := options.RedeemAttemptLimit
	if limit <= 0 {
		limit = defaultRedeemAttemptLimit
	}
	window := options.RedeemAttemptWindow
	if window <= 0 {
		window = defaultRedeemAttemptWindow
	}

	attempts := options.AttemptTracker
	if attempts == nil {
		attempts = newAttemptLimiter()
	}

	handler := &Handler{
		db:                  database,
		secretKey:           []byte(strings.TrimSpace(options.SecretKey)),
		trustUserIDHeader:   options.TrustUserIDHeader,
		redeemAttemptLimit:  limit,
		redeemAttemptWindow: window,
		attempts:            attempts,
		metrics:             handlerMetrics,
		logger:              logger.Named("api"),
		now:                 now,
	}
	return handler.withDependencies(database, options.WebhookSecret), nil
}
