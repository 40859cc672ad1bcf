package db

import (
	"context"

	"github.com/terraincognita07/tierly/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BillingEventRepository struct {
	database *gorm.DB
}

func NewBillingEventRepository(database *gorm.DB) *BillingEventRepository {
	return &BillingEventRepository{database: database}
}

// Record inserts the event unless one with the same provider id exists.
// It reports whether a new row was written.
func (repo *BillingEventRepository) Record(ctx context.Context, event *models.BillingEvent) (bool, error) {
	result := connection(ctx, repo.database).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *BillingEventRepository) ListByAppUserID(ctx context.Context, appUserID string) ([]models.BillingEvent, error) {
	events := make([]models.BillingEvent, 0)
	if err := connection(ctx, repo.database).
		Where("app_user_id = ?", appUserID).
		Order("received_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
