package dto

import "time"

// CryptoBotWebhookUpdate is the body CryptoBot posts to the webhook URL
// Docs: https://help.crypt.bot/crypto-pay-api#webhooks
type CryptoBotWebhookUpdate struct {
	UpdateID    int64                   `json:"update_id"`
	UpdateType  string                  `json:"update_type" validate:"required"`
	RequestDate *time.Time              `json:"request_date"`
	Payload     CryptoBotWebhookInvoice `json:"payload"`
}

// CryptoBotWebhookInvoice is the invoice object embedded in a webhook update
type CryptoBotWebhookInvoice struct {
	InvoiceID int64      `json:"invoice_id" validate:"required"`
	Status    string     `json:"status"`
	Asset     string     `json:"asset"`
	Amount    string     `json:"amount"`
	Payload   string     `json:"payload"`
	PaidAt    *time.Time `json:"paid_at"`
}

// CrystalPayCallback is the body CrystalPay posts to callback_url
type CrystalPayCallback struct {
	ID        string `json:"id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	State     string `json:"state" validate:"required"`
	Extra     string `json:"extra"`
}
