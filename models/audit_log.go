package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       *uint           `gorm:"index:idx_audit_user_id" json:"user_id,omitempty"`
	TopUpID      *uint           `gorm:"index:idx_audit_top_up_id" json:"top_up_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionTopUpCreated      = "top_up_created"
	AuditActionTopUpCreateFailed = "top_up_create_failed"
	AuditActionTopUpCompleted    = "top_up_completed"
	AuditActionTopUpExpired      = "top_up_expired"
	AuditActionReferralRewarded  = "referral_rewarded"
	AuditActionWebhookRejected   = "webhook_rejected"
	AuditActionCascadeStepFailed = "cascade_step_failed"
)

// AllModels lists every table migrated at startup
func AllModels() []any {
	return []any{
		&User{},
		&TopUp{},
		&ReferralReward{},
		&BalanceTransaction{},
		&AuditLog{},
	}
}
