package db

import (
	"context"
	"strings"

	"github.com/terraincognita07/tierly/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	database *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{database: database}
}

func (repo *UserRepository) FindByID(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	if err := connection(ctx, repo.database).First(&user, userID).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (repo *UserRepository) FindByIDForUpdate(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	if err := lockingRead(connection(ctx, repo.database)).First(&user, userID).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// FindByReferralCode matches codes case-insensitively through the normalized index.
func (repo *UserRepository) FindByReferralCode(ctx context.Context, code string) (models.User, error) {
	var user models.User
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if err := connection(ctx, repo.database).
		Where("upper(referral_code) = ?", normalized).
		First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// AssignReferralCode stores code for a user that has none yet. It returns
// false when the user already got a code or another user owns this one.
func (repo *UserRepository) AssignReferralCode(ctx context.Context, userID uint, code string) (bool, error) {
	result := connection(ctx, repo.database).Model(&models.User{}).
		Where("id = ? AND (referral_code IS NULL OR referral_code = '')", userID).
		Update("referral_code", code)
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *UserRepository) UpdateByID(ctx context.Context, userID uint, updates map[string]any) error {
	result := connection(ctx, repo.database).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *UserRepository) Create(ctx context.Context, user *models.User) error {
	return connection(ctx, repo.database).Create(user).Error
}
