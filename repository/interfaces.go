// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
}

// TopUpRepository is the invoice ledger. Status changes go through TransitionStatus only.
type TopUpRepository interface {
	Repository[models.TopUp]
	ByIDForUpdate(ctx context.Context, id uint) (*models.TopUp, error)
	ByUUID(ctx context.Context, id uuid.UUID) (*models.TopUp, error)
	ByOrderID(ctx context.Context, provider models.PaymentProvider, orderID string) (*models.TopUp, error)
	// ListPending returns created top-ups with id > afterID in id order; limit <= 0 means no limit
	ListPending(ctx context.Context, afterID uint, limit int) ([]*models.TopUp, error)
	Update(ctx context.Context, topUp *models.TopUp) error
	// TransitionStatus moves a top-up from one status to another and reports whether this call did it
	TransitionStatus(ctx context.Context, id uint, from, to models.TopUpStatus, reason string) (bool, error)
}

// UserRepository defines operations for users and their balances
type UserRepository interface {
	Repository[models.User]
	ByIDForUpdate(ctx context.Context, id uint) (*models.User, error)
	ListAdmins(ctx context.Context) ([]*models.User, error)
	IncreaseBalance(ctx context.Context, userID uint, amount decimal.Decimal) error
	IncreaseReferralBalance(ctx context.Context, userID uint, amount decimal.Decimal) error
}

// BalanceTransactionRepository appends to the balance journal
type BalanceTransactionRepository interface {
	Save(ctx context.Context, tx *models.BalanceTransaction) error
}

// ReferralRewardRepository defines operations for referral rewards
type ReferralRewardRepository interface {
	Repository[models.ReferralReward]
	ByTopUpID(ctx context.Context, topUpID uint) (*models.ReferralReward, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog]
}
