package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// CryptoBotSignatureHeader carries the webhook body signature
const CryptoBotSignatureHeader = "crypto-pay-api-signature"

type CryptoBotClient struct {
	http      *providerHTTP
	token     string
	asset     string
	expiresIn int
}

type CryptoBotOptions struct {
	BaseURL string
	Token   string
	Asset   string
	Timeout time.Duration
	// ExpiresIn is the invoice lifetime in seconds
	ExpiresIn int
	Retry     RetryOptions
}

// NewCryptoBotClient validates the API token up front; a missing token is a configuration error
func NewCryptoBotClient(opts CryptoBotOptions) (*CryptoBotClient, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("cryptobot: %w", ErrMissingCredentials)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Asset == "" {
		opts.Asset = "USDT"
	}
	if opts.ExpiresIn <= 0 {
		opts.ExpiresIn = int(utils.DefaultInvoiceLifetime / time.Second)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://pay.crypt.bot/api"
	}
	return &CryptoBotClient{
		http: &providerHTTP{
			provider: models.PaymentProviderCryptoBot,
			baseURL:  strings.TrimRight(opts.BaseURL, "/"),
			client:   &http.Client{Timeout: opts.Timeout},
			retry:    opts.Retry,
			headers:  map[string]string{"Crypto-Pay-API-Token": opts.Token},
		},
		token:     opts.Token,
		asset:     opts.Asset,
		expiresIn: opts.ExpiresIn,
	}, nil
}

func (c *CryptoBotClient) Name() models.PaymentProvider { return models.PaymentProviderCryptoBot }

// Docs: https://help.crypt.bot/crypto-pay-api

type cryptoBotCreateReq struct {
	Asset          string `json:"asset"`
	Amount         string `json:"amount"`
	Payload        string `json:"payload,omitempty"`
	Description    string `json:"description,omitempty"`
	AllowComments  bool   `json:"allow_comments"`
	AllowAnonymous bool   `json:"allow_anonymous"`
	ExpiresIn      int    `json:"expires_in,omitempty"`
}

type cryptoBotGetInvoicesReq struct {
	InvoiceIDs string `json:"invoice_ids"`
}

// CryptoBotInvoice is the invoice object returned by the API and sent in webhooks
type CryptoBotInvoice struct {
	InvoiceID      int64           `json:"invoice_id"`
	Status         string          `json:"status"`
	Asset          string          `json:"asset"`
	Amount         decimal.Decimal `json:"amount"`
	PayURL         string          `json:"pay_url"`
	BotInvoiceURL  string          `json:"bot_invoice_url"`
	Payload        string          `json:"payload"`
	CreatedAt      *time.Time      `json:"created_at"`
	ExpirationDate *time.Time      `json:"expiration_date"`
	PaidAt         *time.Time      `json:"paid_at"`
}

type cryptoBotError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

type cryptoBotCreateResp struct {
	OK     bool             `json:"ok"`
	Error  *cryptoBotError  `json:"error"`
	Result CryptoBotInvoice `json:"result"`
}

type cryptoBotGetInvoicesResp struct {
	OK     bool            `json:"ok"`
	Error  *cryptoBotError `json:"error"`
	Result struct {
		Items []CryptoBotInvoice `json:"items"`
	} `json:"result"`
}

// CreateInvoice issues an invoice in the configured asset
func (c *CryptoBotClient) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	if !in.Amount.IsPositive() {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: fmt.Errorf("amount must be positive, got %s", in.Amount)}
	}

	req := cryptoBotCreateReq{
		Asset:          c.asset,
		Amount:         in.Amount.String(),
		Payload:        in.OrderID,
		Description:    in.Metadata["description"],
		AllowComments:  false,
		AllowAnonymous: false,
		ExpiresIn:      c.expiresIn,
	}

	var resp cryptoBotCreateResp
	if err := c.http.postJSON(ctx, "create_invoice", "/createInvoice", req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: resp.Error.asError()}
	}
	if resp.Result.InvoiceID == 0 {
		return nil, &PaymentError{Provider: c.Name(), Op: "create_invoice", Err: fmt.Errorf("malformed response: missing invoice_id")}
	}

	inv := c.toInvoice(resp.Result)
	inv.Status = InvoiceStatusPending
	if inv.ExpiresAt == nil {
		t := utils.UTCNowAdd(time.Duration(c.expiresIn) * time.Second)
		inv.ExpiresAt = &t
	}
	return inv, nil
}

// CheckStatus returns the mapped status of an invoice
func (c *CryptoBotClient) CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error) {
	inv, err := c.GetInvoice(ctx, invoiceID)
	if err != nil {
		return InvoiceStatusPending, err
	}
	return inv.Status, nil
}

// GetInvoice looks one invoice up through getInvoices
func (c *CryptoBotClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if _, err := strconv.ParseInt(invoiceID, 10, 64); err != nil {
		return nil, &PaymentError{Provider: c.Name(), Op: "get_invoices", Err: fmt.Errorf("invalid invoice id %q", invoiceID)}
	}

	var resp cryptoBotGetInvoicesResp
	if err := c.http.postJSON(ctx, "get_invoices", "/getInvoices", cryptoBotGetInvoicesReq{InvoiceIDs: invoiceID}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &PaymentError{Provider: c.Name(), Op: "get_invoices", Err: resp.Error.asError()}
	}

	for _, item := range resp.Result.Items {
		if strconv.FormatInt(item.InvoiceID, 10) == invoiceID {
			return c.toInvoice(item), nil
		}
	}
	return nil, &PaymentError{Provider: c.Name(), Op: "get_invoices", Err: fmt.Errorf("invoice %s not found", invoiceID)}
}

// VerifyWebhookSignature checks hex(HMAC-SHA256(key=SHA256(token), body))
func (c *CryptoBotClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(given, SignCryptoBotBody(c.token, body))
}

// SignCryptoBotBody computes the raw webhook signature for body
func SignCryptoBotBody(token string, body []byte) []byte {
	secret := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	return mac.Sum(nil)
}

func (c *CryptoBotClient) toInvoice(item CryptoBotInvoice) *Invoice {
	url := item.BotInvoiceURL
	if url == "" {
		url = item.PayURL
	}
	return &Invoice{
		ID:        strconv.FormatInt(item.InvoiceID, 10),
		URL:       url,
		Amount:    item.Amount,
		Status:    MapCryptoBotStatus(item.Status),
		ExpiresAt: utils.TimeToUTCPtr(item.ExpirationDate),
	}
}

// MapCryptoBotStatus maps the provider status vocabulary; unknown statuses stay pending
func MapCryptoBotStatus(status string) InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return InvoiceStatusPaid
	case "active":
		return InvoiceStatusPending
	case "expired":
		return InvoiceStatusExpired
	default:
		return InvoiceStatusPending
	}
}

func (e *cryptoBotError) asError() error {
	if e == nil {
		return fmt.Errorf("provider returned ok=false")
	}
	return fmt.Errorf("provider error %d: %s", e.Code, e.Name)
}
