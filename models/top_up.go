// Package models contains domain entities for balance top-ups, users and rewards
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// PaymentProvider identifies an external payment gateway
type PaymentProvider string

const (
	PaymentProviderCrystalPay PaymentProvider = "crystalpay" // Card/crypto gateway, polling-first
	PaymentProviderCryptoBot  PaymentProvider = "cryptobot"  // Telegram-native crypto gateway, webhook + polling
)

// IsValid reports whether p is one of the supported providers
func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderCrystalPay || p == PaymentProviderCryptoBot
}

// TopUpStatus represents the lifecycle state of a top-up invoice
type TopUpStatus string

const (
	TopUpStatusCreated   TopUpStatus = "created"   // Invoice issued, waiting for the provider to report payment
	TopUpStatusCompleted TopUpStatus = "completed" // Paid and credited to the user's balance
	TopUpStatusExpired   TopUpStatus = "expired"   // Expired or failed on the provider side
)

// IsTerminal returns true once the status can no longer change
func (s TopUpStatus) IsTerminal() bool {
	return s == TopUpStatusCompleted || s == TopUpStatusExpired
}

// TopUp is one balance top-up attempt. Rows are never deleted.
type TopUp struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	UserID uint `gorm:"not null;index" json:"user_id"`

	// Provider-issued invoice id, unique per provider
	Provider PaymentProvider `gorm:"type:varchar(20);not null;uniqueIndex:uk_top_ups_provider_order_id" json:"provider"`
	OrderID  string          `gorm:"type:varchar(255);not null;uniqueIndex:uk_top_ups_provider_order_id" json:"order_id"`

	Amount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"` // USD
	PayURL string          `gorm:"type:text" json:"pay_url"`

	Status       TopUpStatus `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	StatusReason string      `gorm:"type:text" json:"status_reason"`

	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (TopUp) TableName() string {
	return "top_ups"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (t *TopUp) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// IsPending returns true while the provider has not reported a terminal status
func (t *TopUp) IsPending() bool {
	return t.Status == TopUpStatusCreated
}

// IsExpiredAt reports whether the stored expiry lies before now
func (t *TopUp) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// IsExpired checks the stored expiry against the current UTC time
func (t *TopUp) IsExpired() bool {
	return t.IsExpiredAt(utils.UTCNow())
}
