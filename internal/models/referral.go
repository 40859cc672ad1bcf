package models

import "time"

const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
	ReferralStatusRewarded  = "rewarded"
)

type Referral struct {
	ID             uint   `gorm:"primaryKey"`
	ReferrerID     uint   `gorm:"not null;uniqueIndex:uidx_referrals_pair"`
	ReferredUserID uint   `gorm:"not null;uniqueIndex:uidx_referrals_pair"`
	ReferralCode   string `gorm:"not null"`
	Status         string `gorm:"not null;default:pending"`
	RewardDays     int    `gorm:"not null;default:0"`
	CompletedAt    *time.Time
	RewardedAt     *time.Time
	CreatedAt      time.Time

	ReferredUser User `gorm:"foreignKey:ReferredUserID"`
}
