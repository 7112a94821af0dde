package repository

import (
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

// BalanceTransactionRepositoryImpl implements BalanceTransactionRepository interface
type BalanceTransactionRepositoryImpl struct {
	*BaseRepository[models.BalanceTransaction]
}

// NewBalanceTransactionRepository creates a new balance journal repository
func NewBalanceTransactionRepository(db *gorm.DB) BalanceTransactionRepository {
	return &BalanceTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BalanceTransaction](db),
	}
}
