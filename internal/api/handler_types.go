package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/metrics"
	"github.com/terraincognita07/tierly/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	db                  *gorm.DB
	secretKey           []byte
	trustUserIDHeader   bool
	redeemAttemptLimit  int
	redeemAttemptWindow time.Duration
	attempts            AttemptTracker
	metrics             *metrics.Metrics
	logger              *zap.Logger
	now                 func() time.Time

	repositories *db.Repositories
	referrals    *services.ReferralLedger
	billing      *services.SubscriptionReconciler
}

// Options configures a Handler. Zero values fall back to in-memory attempt
// tracking, a fresh metrics registry and a no-op logger.
type Options struct {
	SecretKey           string
	WebhookSecret       string
	TrustUserIDHeader   bool
	RedeemAttemptLimit  int
	RedeemAttemptWindow time.Duration
	AttemptTracker      AttemptTracker
	Metrics             *metrics.Metrics
	Logger              *zap.Logger
	Now                 func() time.Time
}

type redeemInput struct {
	Action       string `json:"action"`
	ReferralCode string `json:"referralCode"`
}

type redeemResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Reward  services.RedemptionReward `json:"reward"`
}

type identityClaims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

const (
	defaultRedeemAttemptLimit  = 10
	defaultRedeemAttemptWindow = 15 * time.Minute
	redeemActionInit           = "init"
	redeemActionRedeem         = "redeem"
)
