package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraincognita07/tierly/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferredUserBonusDays is the flat premium granted to whoever redeems a code.
const ReferredUserBonusDays = 7

type ReferralUserRepository interface {
	FindByID(ctx context.Context, userID uint) (models.User, error)
	FindByIDForUpdate(ctx context.Context, userID uint) (models.User, error)
	FindByReferralCode(ctx context.Context, code string) (models.User, error)
	AssignReferralCode(ctx context.Context, userID uint, code string) (bool, error)
	UpdateByID(ctx context.Context, userID uint, updates map[string]any) error
}

type ReferralRepository interface {
	Create(ctx context.Context, referral *models.Referral) error
	ExistsForPair(ctx context.Context, referrerID uint, referredUserID uint) (bool, error)
	CountByReferrer(ctx context.Context, referrerID uint, statuses ...string) (int64, error)
	ListByReferrer(ctx context.Context, referrerID uint) ([]models.Referral, error)
	MarkCompletedAsRewarded(ctx context.Context, referrerID uint, rewardDays int, rewardedAt time.Time) (int64, error)
}

// TransactionRunner runs fn in one transaction; repositories called with the
// context handed to fn take part in it.
type TransactionRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ReferralStats struct {
	CompletedReferrals     int        `json:"completedReferrals"`
	PendingReferrals       int        `json:"pendingReferrals"`
	TotalDaysEarned        int        `json:"totalDaysEarned"`
	IsPremiumFromReferrals bool       `json:"isPremiumFromReferrals"`
	PremiumExpiry          *time.Time `json:"premiumExpiry"`
}

type ReferredUserSummary struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type ReferralEntry struct {
	ID           uint                `json:"id"`
	Status       string              `json:"status"`
	RewardDays   int                 `json:"rewardDays"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt"`
	RewardedAt   *time.Time          `json:"rewardedAt"`
	ReferredUser ReferredUserSummary `json:"referredUser"`
}

type ReferralData struct {
	ReferralCode string          `json:"referralCode"`
	Stats        ReferralStats   `json:"stats"`
	NextTier     *NextRewardTier `json:"nextTier,omitempty"`
	Referrals    []ReferralEntry `json:"referrals"`
	RewardTiers  []RewardTier    `json:"rewardTiers"`
}

type ReferrerIdentity struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type CodeValidation struct {
	Valid    bool              `json:"valid"`
	Referrer *ReferrerIdentity `json:"referrer,omitempty"`
}

type RedemptionReward struct {
	ReferrerName string    `json:"referrerName"`
	DaysEarned   int       `json:"daysEarned"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RedemptionResult carries the reward shown to the redeeming user plus the
// referrer's new standing for logging and metrics.
type RedemptionResult struct {
	Reward             RedemptionReward
	ReferrerID         uint
	ReferrerCompleted  int
	ReferrerTotalDays  int
	ReferrerTier       models.Tier
	ReferrerRewarded   bool
	ReferrerExpiryDate *time.Time
}

type ReferralLedger struct {
	users     ReferralUserRepository
	referrals ReferralRepository
	tx        TransactionRunner
	logger    *zap.Logger
}

func NewReferralLedger(users ReferralUserRepository, referrals ReferralRepository, tx TransactionRunner, logger *zap.Logger) *ReferralLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferralLedger{
		users:     users,
		referrals: referrals,
		tx:        tx,
		logger:    logger.Named("referrals"),
	}
}

func (service *ReferralLedger) GetReferralData(ctx context.Context, userID uint, now time.Time) (ReferralData, error) {
	user, err := service.findUser(ctx, userID)
	if err != nil {
		return ReferralData{}, err
	}

	code, err := service.ensureReferralCode(ctx, user, now)
	if err != nil {
		return ReferralData{}, err
	}

	completed, err := service.referrals.CountByReferrer(ctx, userID, models.ReferralStatusCompleted, models.ReferralStatusRewarded)
	if err != nil {
		return ReferralData{}, fmt.Errorf("count completed referrals: %w", err)
	}
	pending, err := service.referrals.CountByReferrer(ctx, userID, models.ReferralStatusPending)
	if err != nil {
		return ReferralData{}, fmt.Errorf("count pending referrals: %w", err)
	}
	referrals, err := service.referrals.ListByReferrer(ctx, userID)
	if err != nil {
		return ReferralData{}, fmt.Errorf("list referrals: %w", err)
	}

	data := ReferralData{
		ReferralCode: code,
		Stats: ReferralStats{
			CompletedReferrals:     int(completed),
			PendingReferrals:       int(pending),
			TotalDaysEarned:        DaysForCount(int(completed)),
			IsPremiumFromReferrals: user.ReferralPremiumExpiry != nil && user.ReferralPremiumExpiry.After(now),
			PremiumExpiry:          user.ReferralPremiumExpiry,
		},
		Referrals:   buildReferralEntries(referrals),
		RewardTiers: RewardSchedule(),
	}
	if next, ok := FindNextRewardTier(int(completed)); ok {
		data.NextTier = &next
	}
	return data, nil
}

func buildReferralEntries(referrals []models.Referral) []ReferralEntry {
	entries := make([]ReferralEntry, 0, len(referrals))
	for _, referral := range referrals {
		entries = append(entries, ReferralEntry{
			ID:          referral.ID,
			Status:      referral.Status,
			RewardDays:  referral.RewardDays,
			CreatedAt:   referral.CreatedAt,
			CompletedAt: referral.CompletedAt,
			RewardedAt:  referral.RewardedAt,
			ReferredUser: ReferredUserSummary{
				ID:       referral.ReferredUser.ID,
				Name:     referral.ReferredUser.Name,
				Username: referral.ReferredUser.Username,
			},
		})
	}
	return entries
}

func (service *ReferralLedger) ValidateCode(ctx context.Context, rawCode string) (CodeValidation, error) {
	code := NormalizeReferralCode(rawCode)
	if code == "" {
		return CodeValidation{Valid: false}, nil
	}

	owner, err := service.users.FindByReferralCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CodeValidation{Valid: false}, nil
	}
	if err != nil {
		return CodeValidation{}, fmt.Errorf("find referral code owner: %w", err)
	}

	return CodeValidation{
		Valid:    true,
		Referrer: &ReferrerIdentity{ID: owner.ID, Name: owner.DisplayName()},
	}, nil
}

func (service *ReferralLedger) InitCode(ctx context.Context, userID uint, now time.Time) (string, error) {
	user, err := service.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return service.ensureReferralCode(ctx, user, now)
}

// RedeemCode links userID to the owner of rawCode, rewards the owner per the
// schedule and grants the redeeming user the signup bonus. Nothing is written
// unless every check passes.
func (service *ReferralLedger) RedeemCode(ctx context.Context, userID uint, rawCode string, now time.Time) (RedemptionResult, error) {
	code := NormalizeReferralCode(rawCode)
	if code == "" {
		return RedemptionResult{}, ErrInvalidReferralCode
	}

	var result RedemptionResult
	err := service.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		actingUser, err := service.users.FindByIDForUpdate(txCtx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("load redeeming user: %w", err)
		}
		if actingUser.ReferredBy != nil {
			return ErrAlreadyReferred
		}
		if actingUser.HasReferralCode() && NormalizeReferralCode(*actingUser.ReferralCode) == code {
			return ErrSelfReferral
		}

		owner, err := service.users.FindByReferralCode(txCtx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		if err != nil {
			return fmt.Errorf("find referral code owner: %w", err)
		}
		if owner.ID == actingUser.ID {
			return ErrSelfReferral
		}
		if owner, err = service.users.FindByIDForUpdate(txCtx, owner.ID); err != nil {
			return fmt.Errorf("lock referral code owner: %w", err)
		}

		exists, err := service.referrals.ExistsForPair(txCtx, owner.ID, actingUser.ID)
		if err != nil {
			return fmt.Errorf("check referral pair: %w", err)
		}
		if exists {
			return ErrDuplicateReferral
		}

		referral := models.Referral{
			ReferrerID:     owner.ID,
			ReferredUserID: actingUser.ID,
			ReferralCode:   code,
			Status:         models.ReferralStatusCompleted,
			CompletedAt:    &now,
			CreatedAt:      now,
		}
		if err := service.referrals.Create(txCtx, &referral); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReferral
			}
			return fmt.Errorf("create referral: %w", err)
		}
		if err := service.users.UpdateByID(txCtx, actingUser.ID, map[string]any{"referred_by": owner.ID}); err != nil {
			return fmt.Errorf("link referred user: %w", err)
		}

		reward, err := service.rewardReferrer(txCtx, owner, now)
		if err != nil {
			return err
		}

		bonusExpiry := now.AddDate(0, 0, ReferredUserBonusDays)
		if err := service.users.UpdateByID(txCtx, actingUser.ID, map[string]any{
			"referral_premium_days":   ReferredUserBonusDays,
			"referral_premium_expiry": bonusExpiry,
			"subscription_tier":       models.TierGold,
			"subscription_status":     models.SubscriptionStatusActive,
			"subscription_expiry":     bonusExpiry,
		}); err != nil {
			return fmt.Errorf("grant referral bonus: %w", err)
		}

		result = reward
		result.Reward = RedemptionReward{
			ReferrerName: owner.DisplayName(),
			DaysEarned:   ReferredUserBonusDays,
			ExpiresAt:    bonusExpiry,
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			service.logger.Error("referral redemption failed", zap.Uint("user_id", userID), zap.Error(err))
		}
		return RedemptionResult{}, err
	}

	service.logger.Info("referral redeemed",
		zap.Uint("user_id", userID),
		zap.Uint("referrer_id", result.ReferrerID),
		zap.Int("referrer_completed", result.ReferrerCompleted),
		zap.Int("referrer_days", result.ReferrerTotalDays),
		zap.String("referrer_tier", string(result.ReferrerTier)),
	)
	return result, nil
}

// rewardReferrer recounts the owner's completed referrals, including the one
// just inserted, and extends their premium once a threshold is reached.
func (service *ReferralLedger) rewardReferrer(ctx context.Context, owner models.User, now time.Time) (RedemptionResult, error) {
	count, err := service.referrals.CountByReferrer(ctx, owner.ID, models.ReferralStatusCompleted, models.ReferralStatusRewarded)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("count referrer referrals: %w", err)
	}

	completed := int(count)
	result := RedemptionResult{
		ReferrerID:        owner.ID,
		ReferrerCompleted: completed,
		ReferrerTotalDays: DaysForCount(completed),
		ReferrerTier:      owner.SubscriptionTier,
	}
	if result.ReferrerTotalDays <= 0 {
		return result, nil
	}

	expiry := ExtendExpiry(owner.ReferralPremiumExpiry, now, result.ReferrerTotalDays)
	result.ReferrerTier = TierForCount(completed)
	result.ReferrerRewarded = true
	result.ReferrerExpiryDate = &expiry

	if err := service.users.UpdateByID(ctx, owner.ID, map[string]any{
		"referral_premium_days":   result.ReferrerTotalDays,
		"referral_premium_expiry": expiry,
		"subscription_tier":       result.ReferrerTier,
		"subscription_status":     models.SubscriptionStatusActive,
		"subscription_expiry":     expiry,
	}); err != nil {
		return RedemptionResult{}, fmt.Errorf("reward referrer: %w", err)
	}
	if _, err := service.referrals.MarkCompletedAsRewarded(ctx, owner.ID, result.ReferrerTotalDays, now); err != nil {
		return RedemptionResult{}, fmt.Errorf("mark referrals rewarded: %w", err)
	}
	return result, nil
}

// ExtendExpiry adds days to the later of now and the current expiry, so an
// entitlement that is still running is never shortened.
func ExtendExpiry(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.AddDate(0, 0, days)
}

func (service *ReferralLedger) findUser(ctx context.Context, userID uint) (models.User, error) {
	user, err := service.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// ensureReferralCode returns the user's code, generating and storing one on
// first use. A taken code is retried with a short random suffix.
func (service *ReferralLedger) ensureReferralCode(ctx context.Context, user models.User, now time.Time) (string, error) {
	if user.HasReferralCode() {
		return *user.ReferralCode, nil
	}

	base := GenerateReferralCode(user, now.Year())
	for attempt := 0; attempt < referralCodeMaxAttempts; attempt++ {
		candidate, err := referralCodeCandidate(base, attempt)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}

		assigned, err := service.users.AssignReferralCode(ctx, user.ID, candidate)
		if err != nil {
			return "", fmt.Errorf("store referral code: %w", err)
		}
		if assigned {
			service.logger.Info("referral code created", zap.Uint("user_id", user.ID), zap.String("code", candidate))
			return candidate, nil
		}

		current, err := service.findUser(ctx, user.ID)
		if err != nil {
			return "", err
		}
		if current.HasReferralCode() {
			return *current.ReferralCode, nil
		}
	}

	service.logger.Error("referral code collisions exhausted", zap.Uint("user_id", user.ID), zap.String("base", base))
	return "", ErrCodeUnavailable
}
