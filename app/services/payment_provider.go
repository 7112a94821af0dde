package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

// InvoiceStatus is the provider-neutral invoice status
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
	InvoiceStatusFailed  InvoiceStatus = "failed"
)

// IsTerminal reports whether the provider will not change the status anymore
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusExpired || s == InvoiceStatusFailed
}

// ErrMissingCredentials is a configuration error returned by provider constructors
var ErrMissingCredentials = errors.New("payment provider credentials are missing")

// PaymentError wraps every failure coming from a provider call
type PaymentError struct {
	Provider   models.PaymentProvider
	Op         string
	StatusCode int
	Err        error
}

func (e *PaymentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// IsPaymentError reports whether err came from a provider call
func IsPaymentError(err error) bool {
	var pe *PaymentError
	return errors.As(err, &pe)
}

// Invoice is a provider invoice normalized to UTC instants and neutral statuses
type Invoice struct {
	ID        string
	URL       string
	Amount    decimal.Decimal
	Status    InvoiceStatus
	ExpiresAt *time.Time
}

type CreateInvoiceInput struct {
	Amount   decimal.Decimal
	OrderID  string
	Metadata map[string]string
}

// PaymentProvider is the uniform contract over the supported gateways
type PaymentProvider interface {
	Name() models.PaymentProvider
	CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error)
	CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

// ProviderRegistry resolves a provider adapter by name
type ProviderRegistry map[models.PaymentProvider]PaymentProvider

// NewProviderRegistry indexes providers by Name
func NewProviderRegistry(providers ...PaymentProvider) ProviderRegistry {
	reg := make(ProviderRegistry, len(providers))
	for _, p := range providers {
		reg[p.Name()] = p
	}
	return reg
}

// Get returns the adapter for name, or false when it is not configured
func (r ProviderRegistry) Get(name models.PaymentProvider) (PaymentProvider, bool) {
	p, ok := r[name]
	return p, ok
}

// providerHTTP is the transport shared by provider adapters.
// Every call goes through Retry; only network errors, 5xx and 429 are retried.
type providerHTTP struct {
	provider models.PaymentProvider
	baseURL  string
	client   *http.Client
	retry    RetryOptions
	headers  map[string]string
}

func (h *providerHTTP) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &PaymentError{Provider: h.provider, Op: op, Err: err}
	}

	_, err = Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.do(ctx, op, path, body, out)
	}, h.retry)
	return err
}

func (h *providerHTTP) do(ctx context.Context, op, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Permanent(&PaymentError{Provider: h.provider, Op: op, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Permanent(&PaymentError{Provider: h.provider, Op: op, Err: err})
		}
		return &PaymentError{Provider: h.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &PaymentError{Provider: h.provider, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return &PaymentError{Provider: h.provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", truncate(raw, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Permanent(&PaymentError{Provider: h.provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", truncate(raw, 200))})
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return Permanent(&PaymentError{Provider: h.provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)})
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
