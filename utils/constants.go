package utils

import (
	"time"
)

type contextKey string

// Context keys carried through request-scoped contexts
const (
	EndpointKey  contextKey = "endpoint"
	RequestIDKey contextKey = "request_id"
)

// Payment constants
const (
	// USDCurrency is the denomination of every top-up amount and balance
	USDCurrency = "USD"

	// DefaultInvoiceLifetime is how long a provider invoice stays payable
	DefaultInvoiceLifetime = 60 * time.Minute

	// DefaultReconcileInterval is the poller tick period
	DefaultReconcileInterval = 10 * time.Second

	// DefaultInvoiceCheckTimeout bounds one provider lookup made by the poller
	DefaultInvoiceCheckTimeout = 30 * time.Second

	// DefaultCampaignCooldown bounds promotional pushes to one per user per window
	DefaultCampaignCooldown = 72 * time.Hour
)

// HTTP constants
const (
	// CORSMaxAge is how long browsers may cache a preflight response, in seconds
	CORSMaxAge = 86400

	// WebhookRequestTimeout bounds reconciling one provider notification
	WebhookRequestTimeout = 15 * time.Second

	// APIRequestTimeout bounds a client API call, including provider invoice creation with retries
	APIRequestTimeout = 60 * time.Second
)
