package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

type User struct {
	ID                    uint   `gorm:"primaryKey"`
	Name                  string `gorm:"not null;default:''"`
	Username              string `gorm:"not null;default:''"`
	ReferralCode          *string
	ReferredBy            *uint `gorm:"index"`
	ReferralPremiumDays   int   `gorm:"not null;default:0"`
	ReferralPremiumExpiry *time.Time
	SubscriptionTier      Tier   `gorm:"not null;default:free"`
	SubscriptionStatus    string `gorm:"not null;default:active"`
	SubscriptionExpiry    *time.Time
	SubscriptionProductID *string
	CurrentPlan           *string
	NextBillingDate       *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DisplayName prefers the profile name and falls back to the username.
func (user User) DisplayName() string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

func (user User) HasReferralCode() bool {
	return user.ReferralCode != nil && *user.ReferralCode != ""
}
