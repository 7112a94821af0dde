package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// TopUpRepositoryImpl implements TopUpRepository interface
type TopUpRepositoryImpl struct {
	*BaseRepository[models.TopUp]
}

// NewTopUpRepository creates a new top-up repository
func NewTopUpRepository(db *gorm.DB) TopUpRepository {
	return &TopUpRepositoryImpl{
		BaseRepository: NewBaseRepository[models.TopUp](db),
	}
}

// ByID finds a top-up by ID
func (r *TopUpRepositoryImpl) ByID(ctx context.Context, id uint) (*models.TopUp, error) {
	db := r.getDB(ctx)
	var topUp models.TopUp
	err := db.First(&topUp, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topUp, nil
}

// ByUUID finds a top-up by UUID
func (r *TopUpRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.TopUp, error) {
	db := r.getDB(ctx)
	var topUp models.TopUp
	err := db.Where("uuid = ?", id).Last(&topUp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topUp, nil
}

// ByOrderID finds a top-up by the provider-issued invoice id
func (r *TopUpRepositoryImpl) ByOrderID(ctx context.Context, provider models.PaymentProvider, orderID string) (*models.TopUp, error) {
	db := r.getDB(ctx)
	var topUp models.TopUp
	err := db.Where("provider = ? AND order_id = ?", provider, orderID).Last(&topUp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &topUp, nil
}

// ListPending returns one page of top-ups still waiting for a provider verdict.
// Callers page through the whole set by passing the last id they saw as afterID.
func (r *TopUpRepositoryImpl) ListPending(ctx context.Context, afterID uint, limit int) ([]*models.TopUp, error) {
	db := r.getDB(ctx)
	var topUps []*models.TopUp

	query := db.Where("status = ? AND id > ?", models.TopUpStatusCreated, afterID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&topUps).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending top-ups: %w", err)
	}
	return topUps, nil
}

// Update saves non-status fields of an existing top-up
func (r *TopUpRepositoryImpl) Update(ctx context.Context, topUp *models.TopUp) error {
	db := r.getDB(ctx)
	err := db.Model(&models.TopUp{}).
		Where("id = ?", topUp.ID).
		Updates(map[string]any{
			"pay_url":    topUp.PayURL,
			"expires_at": topUp.ExpiresAt,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update top-up %d: %w", topUp.ID, err)
	}
	return nil
}

// TransitionStatus performs a conditional update guarded by the current status.
// It returns false when another caller already moved the row away from `from`.
func (r *TopUpRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.TopUpStatus, reason string) (bool, error) {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	updates := map[string]any{
		"status":        to,
		"status_reason": reason,
		"updated_at":    now,
	}
	if to == models.TopUpStatusCompleted {
		updates["completed_at"] = now
	}

	result := db.Model(&models.TopUp{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition top-up %d from %s to %s: %w", id, from, to, result.Error)
	}

	return result.RowsAffected == 1, nil
}
