package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceTransactionType represents the reason a balance changed
type BalanceTransactionType string

const (
	BalanceTransactionTypeTopUpCredit    BalanceTransactionType = "top_up_credit"   // Purchasing balance credited from a completed top-up
	BalanceTransactionTypeReferralReward BalanceTransactionType = "referral_reward" // Referral balance credited from a referred user's top-up
)

// BalanceTransaction is an immutable journal entry for a balance change
type BalanceTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	Type    BalanceTransactionType `gorm:"type:varchar(30);not null;uniqueIndex:uk_balance_tx_type_top_up_user" json:"type"`
	TopUpID uint                   `gorm:"not null;uniqueIndex:uk_balance_tx_type_top_up_user" json:"top_up_id"`
	UserID  uint                   `gorm:"not null;index;uniqueIndex:uk_balance_tx_type_top_up_user" json:"user_id"`

	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_after"`

	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (t *BalanceTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}
