package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCryptoBotToken = "12345:AAtesttoken"

func newTestCryptoBot(t *testing.T, handler http.HandlerFunc) *CryptoBotClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewCryptoBotClient(CryptoBotOptions{
		BaseURL:   srv.URL,
		Token:     testCryptoBotToken,
		Asset:     "USDT",
		ExpiresIn: 1800,
		Retry:     noSleepRetry(),
	})
	require.NoError(t, err)
	return client
}

func TestNewCryptoBotClient_MissingToken(t *testing.T) {
	_, err := NewCryptoBotClient(CryptoBotOptions{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestMapCryptoBotStatus(t *testing.T) {
	tests := []struct {
		status   string
		expected InvoiceStatus
	}{
		{"paid", InvoiceStatusPaid},
		{"active", InvoiceStatusPending},
		{"expired", InvoiceStatusExpired},
		{"Expired", InvoiceStatusExpired},
		{"", InvoiceStatusPending},
		{"refunded", InvoiceStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapCryptoBotStatus(tt.status))
		})
	}
}

func TestCryptoBotClient_CreateInvoice(t *testing.T) {
	var got cryptoBotCreateReq
	var token string
	client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/createInvoice", r.URL.Path)
		token = r.Header.Get("Crypto-Pay-API-Token")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"invoice_id":4242,"status":"active","asset":"USDT","amount":"50","pay_url":"https://t.me/CryptoBot?start=IV1","bot_invoice_url":"https://t.me/CryptoBot?start=IV1b","expiration_date":"2026-03-01T12:30:00+03:00"}}`))
	})

	inv, err := client.CreateInvoice(context.Background(), CreateInvoiceInput{
		Amount:  decimal.NewFromInt(50),
		OrderID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, testCryptoBotToken, token)
	assert.Equal(t, "USDT", got.Asset)
	assert.Equal(t, "50", got.Amount)
	assert.Equal(t, "order-1", got.Payload)
	assert.Equal(t, 1800, got.ExpiresIn)

	assert.Equal(t, "4242", inv.ID)
	assert.Equal(t, "https://t.me/CryptoBot?start=IV1b", inv.URL)
	assert.Equal(t, InvoiceStatusPending, inv.Status)
	require.NotNil(t, inv.ExpiresAt)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), *inv.ExpiresAt)
}

func TestCryptoBotClient_CreateInvoice_NotOK(t *testing.T) {
	client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":{"code":401,"name":"UNAUTHORIZED"}}`))
	})

	_, err := client.CreateInvoice(context.Background(), CreateInvoiceInput{Amount: decimal.NewFromInt(5), OrderID: "x"})
	require.Error(t, err)
	assert.True(t, IsPaymentError(err))
	assert.Contains(t, err.Error(), "UNAUTHORIZED")
}

func TestCryptoBotClient_GetInvoice(t *testing.T) {
	var got map[string]any
	client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getInvoices", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"items":[{"invoice_id":4242,"status":"paid","asset":"USDT","amount":"50","pay_url":"https://t.me/x"}]}}`))
	})

	inv, err := client.GetInvoice(context.Background(), "4242")
	require.NoError(t, err)
	assert.Equal(t, "4242", got["invoice_ids"])
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, "https://t.me/x", inv.URL)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(50)))
	assert.Nil(t, inv.ExpiresAt)
}

func TestCryptoBotClient_GetInvoice_Errors(t *testing.T) {
	t.Run("invalid id is rejected locally", func(t *testing.T) {
		var calls int32
		client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		})
		_, err := client.GetInvoice(context.Background(), "not-a-number")
		assert.True(t, IsPaymentError(err))
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("missing invoice", func(t *testing.T) {
		client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"items":[]}}`))
		})
		_, err := client.GetInvoice(context.Background(), "1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("rate limited then ok", func(t *testing.T) {
		var calls int32
		client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"items":[{"invoice_id":1,"status":"expired"}]}}`))
		})
		status, err := client.CheckStatus(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusExpired, status)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		var calls int32
		client := newTestCryptoBot(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		})
		status, err := client.CheckStatus(context.Background(), "1")
		require.Error(t, err)
		assert.Equal(t, InvoiceStatusPending, status)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestCryptoBotClient_VerifyWebhookSignature(t *testing.T) {
	client, err := NewCryptoBotClient(CryptoBotOptions{Token: testCryptoBotToken})
	require.NoError(t, err)

	body := []byte(`{"update_id":1,"update_type":"invoice_paid","payload":{"invoice_id":4242,"status":"paid"}}`)
	signature := hex.EncodeToString(SignCryptoBotBody(testCryptoBotToken, body))

	assert.True(t, client.VerifyWebhookSignature(body, signature))
	assert.False(t, client.VerifyWebhookSignature(append(body, ' '), signature))
	assert.False(t, client.VerifyWebhookSignature(body, hex.EncodeToString(SignCryptoBotBody("other-token", body))))
	assert.False(t, client.VerifyWebhookSignature(body, "not-hex"))
	assert.False(t, client.VerifyWebhookSignature(body, ""))
}
