package dto

// CreateTopUpRequest asks for a new provider invoice for a user's balance top-up
type CreateTopUpRequest struct {
	UserID   uint   `json:"user_id" validate:"required,min=1"`
	Amount   string `json:"amount" validate:"required,numeric"` // USD, decimal string
	Provider string `json:"provider" validate:"required,oneof=crystalpay cryptobot"`
}

// CreateTopUpResponse returns the payment link for a new top-up
type CreateTopUpResponse struct {
	UUID      string  `json:"uuid"`
	OrderID   string  `json:"order_id"`
	Provider  string  `json:"provider"`
	Amount    string  `json:"amount"`
	PayURL    string  `json:"pay_url"`
	Status    string  `json:"status"`
	ExpiresAt *string `json:"expires_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// GetTopUpStatusRequest queries one top-up by UUID
type GetTopUpStatusRequest struct {
	UUID string `json:"uuid" validate:"required,uuid"`
}

// TopUpStatusResponse describes the current lifecycle state of a top-up
type TopUpStatusResponse struct {
	UUID         string  `json:"uuid"`
	OrderID      string  `json:"order_id"`
	Provider     string  `json:"provider"`
	Amount       string  `json:"amount"`
	Status       string  `json:"status"`
	StatusReason string  `json:"status_reason,omitempty"`
	PayURL       string  `json:"pay_url"`
	ExpiresAt    *string `json:"expires_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// WebhookAckResponse is returned to providers once a notification is accepted
type WebhookAckResponse struct {
	Outcome string `json:"outcome"`
}
