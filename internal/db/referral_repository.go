package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraincognita07/tierly/internal/models"
	"gorm.io/gorm"
)

type ReferralRepository struct {
	database *gorm.DB
}

func NewReferralRepository(database *gorm.DB) *ReferralRepository {
	return &ReferralRepository{database: database}
}

// Create inserts referral. A second row for the same pair fails with gorm.ErrDuplicatedKey.
func (repo *ReferralRepository) Create(ctx context.Context, referral *models.Referral) error {
	err := connection(ctx, repo.database).Omit("ReferredUser").Create(referral).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) && IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", gorm.ErrDuplicatedKey, err)
	}
	return err
}

func (repo *ReferralRepository) ExistsForPair(ctx context.Context, referrerID uint, referredUserID uint) (bool, error) {
	var matched int64
	if err := connection(ctx, repo.database).Model(&models.Referral{}).
		Where("referrer_id = ? AND referred_user_id = ?", referrerID, referredUserID).
		Count(&matched).Error; err != nil {
		return false, err
	}
	return matched > 0, nil
}

func (repo *ReferralRepository) CountByReferrer(ctx context.Context, referrerID uint, statuses ...string) (int64, error) {
	var count int64
	query := connection(ctx, repo.database).Model(&models.Referral{}).Where("referrer_id = ?", referrerID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByReferrer returns a referrer's referrals newest first with the referred user attached.
func (repo *ReferralRepository) ListByReferrer(ctx context.Context, referrerID uint) ([]models.Referral, error) {
	referrals := make([]models.Referral, 0)
	if err := connection(ctx, repo.database).
		Preload("ReferredUser").
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC, id DESC").
		Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}

// MarkCompletedAsRewarded flips every completed referral of a referrer to rewarded.
func (repo *ReferralRepository) MarkCompletedAsRewarded(ctx context.Context, referrerID uint, rewardDays int, rewardedAt time.Time) (int64, error) {
	result := connection(ctx, repo.database).Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.ReferralStatusCompleted).
		Updates(map[string]any{
			"status":      models.ReferralStatusRewarded,
			"reward_days": rewardDays,
			"rewarded_at": rewardedAt,
		})
	return result.RowsAffected, result.Error
}
