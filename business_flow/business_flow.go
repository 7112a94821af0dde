// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// auditEntry describes one audit row; nil pointers are stored as NULL
type auditEntry struct {
	UserID      *uint
	TopUpID     *uint
	Action      string
	Description string
	Success     bool
	ErrorMsg    *string
	Extra       map[string]any
}

func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, entry auditEntry, metadata *ClientMetadata) error {
	if auditRepo == nil {
		return nil
	}

	audit := &models.AuditLog{
		UserID:       entry.UserID,
		TopUpID:      entry.TopUpID,
		Action:       entry.Action,
		Description:  &entry.Description,
		Success:      utils.ToPtr(entry.Success),
		ErrorMessage: entry.ErrorMsg,
	}

	if metadata != nil {
		audit.IPAddress = &metadata.IPAddress
		audit.UserAgent = &metadata.UserAgent
		if metadata.RequestID != "" {
			audit.RequestID = &metadata.RequestID
		}
	}

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if len(entry.Extra) > 0 {
		if raw, err := json.Marshal(entry.Extra); err == nil {
			audit.Metadata = raw
		}
	}

	return auditRepo.Save(ctx, audit)
}

// ToTopUpStatusDTO converts a top-up model to its API representation
func ToTopUpStatusDTO(topUp models.TopUp) dto.TopUpStatusResponse {
	return dto.TopUpStatusResponse{
		UUID:         topUp.UUID.String(),
		OrderID:      topUp.OrderID,
		Provider:     string(topUp.Provider),
		Amount:       topUp.Amount.String(),
		Status:       string(topUp.Status),
		StatusReason: topUp.StatusReason,
		PayURL:       topUp.PayURL,
		ExpiresAt:    formatTimePtr(topUp.ExpiresAt),
		CompletedAt:  formatTimePtr(topUp.CompletedAt),
		CreatedAt:    topUp.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    topUp.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
