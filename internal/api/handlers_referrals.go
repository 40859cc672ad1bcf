package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/tierly/internal/services"
)

const tooManyAttemptsMessage = "too many attempts, try again later"

// GetReferrals answers a code lookup when ?code= is present and the caller's
// referral dashboard otherwise.
func (handler *Handler) GetReferrals(c *fiber.Ctx) error {
	if code := strings.TrimSpace(c.Query("code")); code != "" {
		return handler.validateReferralCode(c, code)
	}

	userID, err := handler.resolveUserID(c)
	if err != nil {
		return apiError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	c.Locals(contextUserIDKey, userID)

	data, err := handler.referrals.GetReferralData(c.UserContext(), userID, handler.now())
	if err != nil {
		return handler.serviceError(c, "get referral data", err)
	}
	return c.JSON(data)
}

func (handler *Handler) validateReferralCode(c *fiber.Ctx, code string) error {
	ctx := c.UserContext()
	now := handler.now()
	limiterKey := "lookup:" + requestLimiterKey(c)
	if handler.attempts.tooManyRecent(ctx, limiterKey, now, handler.redeemAttemptLimit, handler.redeemAttemptWindow) {
		handler.metrics.RedeemRateLimited.Inc()
		return apiError(c, fiber.StatusTooManyRequests, tooManyAttemptsMessage)
	}

	validation, err := handler.referrals.ValidateCode(ctx, code)
	if err != nil {
		return handler.serviceError(c, "validate referral code", err)
	}
	if !validation.Valid {
		handler.attempts.addFailure(ctx, limiterKey, now, handler.redeemAttemptWindow)
	}
	return c.JSON(validation)
}

func (handler *Handler) PostReferrals(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apiError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	input := redeemInput{}
	if err := c.BodyParser(&input); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch strings.ToLower(strings.TrimSpace(input.Action)) {
	case redeemActionInit:
		code, err := handler.referrals.InitCode(c.UserContext(), userID, handler.now())
		if err != nil {
			return handler.serviceError(c, "init referral code", err)
		}
		return c.JSON(fiber.Map{"referralCode": code})
	case "", redeemActionRedeem:
		return handler.redeemReferralCode(c, userID, input.ReferralCode)
	default:
		return apiError(c, fiber.StatusBadRequest, "unsupported action")
	}
}

func (handler *Handler) redeemReferralCode(c *fiber.Ctx, userID uint, code string) error {
	ctx := c.UserContext()
	now := handler.now()
	limiterKey := fmt.Sprintf("redeem:user:%d", userID)
	if handler.attempts.tooManyRecent(ctx, limiterKey, now, handler.redeemAttemptLimit, handler.redeemAttemptWindow) {
		handler.metrics.RedeemRateLimited.Inc()
		handler.metrics.ReferralRedemptions.WithLabelValues("rate_limited").Inc()
		return apiError(c, fiber.StatusTooManyRequests, tooManyAttemptsMessage)
	}

	result, err := handler.referrals.RedeemCode(ctx, userID, code, now)
	if err != nil {
		handler.metrics.ReferralRedemptions.WithLabelValues(services.KindOf(err).String()).Inc()
		if errors.Is(err, services.ErrCodeNotFound) {
			handler.attempts.addFailure(ctx, limiterKey, now, handler.redeemAttemptWindow)
		}
		return handler.serviceError(c, "redeem referral code", err)
	}

	handler.attempts.reset(ctx, limiterKey)
	handler.metrics.ReferralRedemptions.WithLabelValues("success").Inc()
	if result.ReferrerRewarded {
		handler.metrics.ReferrerRewards.WithLabelValues(string(result.ReferrerTier)).Inc()
	}

	return c.JSON(redeemResponse{
		Success: true,
		Message: fmt.Sprintf("Referral code applied! You unlocked %d days of Gold premium.", result.Reward.DaysEarned),
		Reward:  result.Reward,
	})
}
