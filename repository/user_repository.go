package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User](db),
	}
}

// ListAdmins returns all users flagged as admin
func (r *UserRepositoryImpl) ListAdmins(ctx context.Context) ([]*models.User, error) {
	db := r.getDB(ctx)
	var users []*models.User
	if err := db.Where("is_admin = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return users, nil
}

// IncreaseBalance adds amount to the purchasing balance with a single SQL expression
func (r *UserRepositoryImpl) IncreaseBalance(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return r.increase(ctx, userID, "balance", amount)
}

// IncreaseReferralBalance adds amount to the referral balance, leaving the purchasing balance untouched
func (r *UserRepositoryImpl) IncreaseReferralBalance(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return r.increase(ctx, userID, "referral_balance", amount)
}

func (r *UserRepositoryImpl) increase(ctx context.Context, userID uint, column string, amount decimal.Decimal) error {
	db := r.getDB(ctx)

	result := db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increase %s for user %d: %w", column, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to increase %s: user %d not found", column, userID)
	}
	return nil
}
