package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

// ErrDuplicateReferralReward is returned when a reward row for the same top-up already exists
var ErrDuplicateReferralReward = errors.New("referral reward already exists for top-up")

// ReferralRewardRepositoryImpl implements ReferralRewardRepository interface
type ReferralRewardRepositoryImpl struct {
	*BaseRepository[models.ReferralReward]
}

// NewReferralRewardRepository creates a new referral reward repository
func NewReferralRewardRepository(db *gorm.DB) ReferralRewardRepository {
	return &ReferralRewardRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ReferralReward](db),
	}
}

// Save inserts a reward row; a unique violation on top_up_id maps to ErrDuplicateReferralReward
func (r *ReferralRewardRepositoryImpl) Save(ctx context.Context, reward *models.ReferralReward) error {
	db := r.getDB(ctx)

	err := db.Create(reward).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReferralReward
		}
		return fmt.Errorf("failed to save referral reward: %w", err)
	}
	return nil
}

// ByTopUpID returns the reward produced by a top-up, or nil
func (r *ReferralRewardRepositoryImpl) ByTopUpID(ctx context.Context, topUpID uint) (*models.ReferralReward, error) {
	db := r.getDB(ctx)
	var reward models.ReferralReward
	err := db.Where("top_up_id = ?", topUpID).Last(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

// isUniqueViolation relies on gorm.Config.TranslateError being enabled
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
