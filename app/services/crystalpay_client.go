package services

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// crystalPayTimeLayout is the naive Moscow-time layout used by expired_at
const crystalPayTimeLayout = "2006-01-02 15:04:05"

type CrystalPayClient struct {
	http        *providerHTTP
	login       string
	secret      string
	salt        string
	lifetimeMin int
	callbackURL string
}

type CrystalPayOptions struct {
	BaseURL     string
	Login       string
	Secret      string
	Salt        string
	Timeout     time.Duration
	LifetimeMin int
	CallbackURL string
	Retry       RetryOptions
}

// NewCrystalPayClient validates credentials up front; missing ones are a configuration error
func NewCrystalPayClient(opts CrystalPayOptions) (*CrystalPayClient, error) {
	if opts.Login == "" || opts.Secret == "" {
		return nil, fmt.Errorf("crystalpay: %w", ErrMissingCredentials)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.LifetimeMin <= 0 {
		opts.LifetimeMin = int(utils.DefaultInvoiceLifetime / time.Minute)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.crystalpay.io/v2"
	}
	return &CrystalPayClient{
		http: &providerHTTP{
			provider: models.PaymentProviderCrystalPay,
			baseURL:  strings.TrimRight(opts.BaseURL, "/"),
			client:   &http.Client{Timeout: opts.Timeout},
			retry:    opts.Retry,
		},
		login:       opts.Login,
		secret:      opts.Secret,
		salt:        opts.Salt,
		lifetimeMin: opts.LifetimeMin,
		callbackURL: opts.CallbackURL,
	}, nil
}

func (c *CrystalPayClient) Name() models.PaymentProvider { return models.PaymentProviderCrystalPay }

// Docs: https://docs.crystalpay.io/api/operacii-s-invoisami

type crystalPayCreateReq struct {
	AuthLogin      string `json:"auth_login"`
	AuthSecret     string `json:"auth_secret"`
	Amount         string `json:"amount"`
	AmountCurrency string `json:"amount_currency"`
	Lifetime       int    `json:"lifetime"`
	Type           string `json:"type"`
	Description    string `json:"description,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	Extra          string `json:"extra,omitempty"`
}

type crystalPayCreateResp struct {
	Error     bool            `json:"error"`
	Errors    []string        `json:"errors"`
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	RubAmount decimal.Decimal `json:"rub_amount"`
	Type      string          `json:"type"`
	ExpiredAt string          `json:"expired_at,omitempty"`
}

type crystalPayInfoReq struct {
	AuthLogin  string `json:"auth_login"`
	AuthSecret string `json:"auth_secret"`
	ID         string `json:"id"`
}

type crystalPayInfoResp struct {
	Error     bool            `json:"error"`
	Errors    []string        `json:"errors"`
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	State     string          `json:"state"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Extra     string          `json:"extra"`
	ExpiredAt string          `json:"expired_at"`
}

// CreateInvoice issues a purchase invoice denominated in USD
func (c *CrystalPayClient) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	if !in.Amount.IsPositive() {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: fmt.Errorf("amount must be positive, got %s", in.Amount)}
	}

	req := crystalPayCreateReq{
		AuthLogin:      c.login,
		AuthSecret:     c.secret,
		Amount:         in.Amount.String(),
		AmountCurrency: utils.USDCurrency,
		Lifetime:       c.lifetimeMin,
		Type:           "purchase",
		Description:    in.Metadata["description"],
		RedirectURL:    in.Metadata["redirect_url"],
		CallbackURL:    c.callbackURL,
		Extra:          in.OrderID,
	}

	var resp crystalPayCreateResp
	if err := c.http.postJSON(ctx, "create_invoice", "/invoice/create/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: fmt.Errorf("provider error: %s", strings.Join(resp.Errors, "; "))}
	}
	if resp.ID == "" || resp.URL == "" {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: fmt.Errorf("malformed response: missing id or url")}
	}

	expiresAt, err := parseCrystalPayTime(resp.ExpiredAt)
	if err != nil {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: err}
	}
	if expiresAt == nil {
		t := utils.UTCNowAdd(time.Duration(c.lifetimeMin) * time.Minute)
		expiresAt = &t
	}

	return &Invoice{
		ID:        resp.ID,
		URL:       resp.URL,
		Amount:    in.Amount,
		Status:    InvoiceStatusPending,
		ExpiresAt: expiresAt,
	}, nil
}

// CheckStatus returns the mapped state of an invoice
func (c *CrystalPayClient) CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error) {
	inv, err := c.GetInvoice(ctx, invoiceID)
	if err != nil {
		return InvoiceStatusPending, err
	}
	return inv.Status, nil
}

// GetInvoice fetches invoice info with expired_at normalized to UTC
func (c *CrystalPayClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	req := crystalPayInfoReq{
		AuthLogin:  c.login,
		AuthSecret: c.secret,
		ID:         invoiceID,
	}

	var resp crystalPayInfoResp
	if err := c.http.postJSON(ctx, "invoice_info", "/invoice/info/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &PaymentError{Provider: c.Name(), Op: "invoice_info", Err: fmt.Errorf("provider error: %s", strings.Join(resp.Errors, "; "))}
	}

	expiresAt, err := parseCrystalPayTime(resp.ExpiredAt)
	if err != nil {
		return nil, &PaymentError{Provider: c.Name(), Op: "invoice_info", Err: err}
	}

	id := resp.ID
	if id == "" {
		id = invoiceID
	}
	return &Invoice{
		ID:        id,
		URL:       resp.URL,
		Amount:    resp.Amount,
		Status:    MapCrystalPayState(resp.State),
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyCallbackSignature checks signature == sha1("<id>:<salt>")
func (c *CrystalPayClient) VerifyCallbackSignature(invoiceID, signature string) bool {
	if c.salt == "" || invoiceID == "" || signature == "" {
		return false
	}
	sum := sha1.Sum([]byte(invoiceID + ":" + c.salt))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}

// MapCrystalPayState maps the provider state vocabulary; unknown states stay pending
func MapCrystalPayState(state string) InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "payed":
		return InvoiceStatusPaid
	case "notpayed", "processing", "wrongamount":
		return InvoiceStatusPending
	case "failed":
		return InvoiceStatusFailed
	case "unavailable":
		return InvoiceStatusExpired
	default:
		return InvoiceStatusPending
	}
}

// parseCrystalPayTime reads a naive UTC+3 timestamp and returns a UTC instant
func parseCrystalPayTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := utils.ParseNaiveInZone(crystalPayTimeLayout, value, utils.MoscowOffset)
	if err != nil {
		return nil, fmt.Errorf("invalid expired_at %q: %w", value, err)
	}
	return &t, nil
}
