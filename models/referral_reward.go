package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralReward is the commission a referrer earned from one top-up.
// The unique top_up_id guarantees at most one reward per top-up.
type ReferralReward struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	ReferrerID uint `gorm:"not null;index" json:"referrer_id"`
	ReferredID uint `gorm:"not null;index" json:"referred_id"`
	TopUpID    uint `gorm:"not null;uniqueIndex:uk_referral_rewards_top_up_id" json:"top_up_id"`

	TopUpAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"top_up_amount"`
	Percent      decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percent"`
	RewardAmount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"reward_amount"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ReferralReward) TableName() string {
	return "referral_rewards"
}

// BeforeCreate ensures UUID is set
func (r *ReferralReward) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	return nil
}
