package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a chat user holding a purchasing balance and a separate referral balance
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"uuid"`
	TelegramID int64     `gorm:"not null;uniqueIndex" json:"telegram_id"`
	Username   string    `gorm:"size:255" json:"username"`

	// Balance is mutated for top-ups only through the credit transaction
	Balance         decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	ReferralBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"referral_balance"`

	ReferrerID *uint `gorm:"index" json:"referrer_id,omitempty"`
	// Referrer-specific commission percent; nil means the configured default
	ReferralPercent *decimal.Decimal `gorm:"type:numeric(5,2)" json:"referral_percent,omitempty"`

	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate ensures UUID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	return nil
}

// CommissionPercent returns the referrer-specific percent or def when unset
func (u *User) CommissionPercent(def decimal.Decimal) decimal.Decimal {
	if u.ReferralPercent != nil && u.ReferralPercent.IsPositive() {
		return *u.ReferralPercent
	}
	return def
}
