package models

import "time"

const (
	BillingOutcomeApplied     = "applied"
	BillingOutcomeIgnoredUser = "ignored_user"
	BillingOutcomeIgnoredType = "ignored_type"
	BillingOutcomeLogged      = "logged"
)

// BillingEvent is the audit record of one webhook delivery. Redeliveries of the
// same provider event keep the first record.
type BillingEvent struct {
	ID           uint   `gorm:"primaryKey"`
	EventID      string `gorm:"not null;uniqueIndex"`
	Type         string `gorm:"not null"`
	AppUserID    string `gorm:"not null;default:''"`
	ProductID    string `gorm:"not null;default:''"`
	ExpirationAt *time.Time
	Outcome      string    `gorm:"not null"`
	ReceivedAt   time.Time `gorm:"not null"`
}
