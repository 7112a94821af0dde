package services

import (
	"context"
	"crypto/sha1"
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

func noSleepRetry() RetryOptions {
	return RetryOptions{
		MaxAttempts:        3,
		Delay:              time.Millisecond,
		ExponentialBackoff: true,
		Sleep:              func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func newTestCrystalPay(t *testing.T, handler http.HandlerFunc) *CrystalPayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewCrystalPayClient(CrystalPayOptions{
		BaseURL:     srv.URL,
		Login:       "shop",
		Secret:      "secret",
		Salt:        "salt",
		LifetimeMin: 30,
		CallbackURL: "https://example.com/api/v1/payments/webhooks/crystalpay",
		Retry:       noSleepRetry(),
	})
	require.NoError(t, err)
	return client
}

func TestNewCrystalPayClient_MissingCredentials(t *testing.T) {
	_, err := NewCrystalPayClient(CrystalPayOptions{Login: "shop"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewCrystalPayClient(CrystalPayOptions{Secret: "secret"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestMapCrystalPayState(t *testing.T) {
	tests := []struct {
		state    string
		expected InvoiceStatus
	}{
		{"payed", InvoiceStatusPaid},
		{"PAYED", InvoiceStatusPaid},
		{"notpayed", InvoiceStatusPending},
		{"processing", InvoiceStatusPending},
		{"wrongamount", InvoiceStatusPending},
		{"failed", InvoiceStatusFailed},
		{"unavailable", InvoiceStatusExpired},
		{"", InvoiceStatusPending},
		{"something_new", InvoiceStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapCrystalPayState(tt.state))
		})
	}
}

func TestCrystalPayClient_CreateInvoice(t *testing.T) {
	var got crystalPayCreateReq
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/create/", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"error":false,"errors":[],"id":"inv_1","url":"https://pay.crystalpay.io/?i=inv_1","rub_amount":"4500","type":"purchase","expired_at":"2026-03-01 15:30:00"}`))
	})

	inv, err := client.CreateInvoice(context.Background(), CreateInvoiceInput{
		Amount:  decimal.RequireFromString("50"),
		OrderID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "shop", got.AuthLogin)
	assert.Equal(t, "secret", got.AuthSecret)
	assert.Equal(t, "50", got.Amount)
	assert.Equal(t, "USD", got.AmountCurrency)
	assert.Equal(t, 30, got.Lifetime)
	assert.Equal(t, "order-1", got.Extra)
	assert.Equal(t, "https://example.com/api/v1/payments/webhooks/crystalpay", got.CallbackURL)

	assert.Equal(t, "inv_1", inv.ID)
	assert.Equal(t, "https://pay.crystalpay.io/?i=inv_1", inv.URL)
	assert.Equal(t, InvoiceStatusPending, inv.Status)
	require.NotNil(t, inv.ExpiresAt)
	// 15:30 in UTC+3 is 12:30 UTC
	assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), *inv.ExpiresAt)
	assert.Equal(t, time.UTC, inv.ExpiresAt.Location())
}

func TestCrystalPayClient_CreateInvoice_RejectsNonPositiveAmount(t *testing.T) {
	var calls int32
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.CreateInvoice(context.Background(), CreateInvoiceInput{Amount: decimal.Zero, OrderID: "x"})
	assert.True(t, IsPaymentError(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCrystalPayClient_CreateInvoice_ProviderError(t *testing.T) {
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"errors":["Amount is too small"]}`))
	})

	_, err := client.CreateInvoice(context.Background(), CreateInvoiceInput{Amount: decimal.NewFromInt(1), OrderID: "x"})
	require.Error(t, err)
	assert.True(t, IsPaymentError(err))
	assert.Contains(t, err.Error(), "Amount is too small")
}

func TestCrystalPayClient_GetInvoice(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus InvoiceStatus
		expectExpiry   bool
	}{
		{
			name:           "paid invoice",
			body:           `{"error":false,"id":"inv_1","state":"payed","amount":"50","currency":"USD","expired_at":"2026-03-01 15:30:00"}`,
			expectedStatus: InvoiceStatusPaid,
			expectExpiry:   true,
		},
		{
			name:           "unavailable invoice",
			body:           `{"error":false,"id":"inv_1","state":"unavailable","amount":50}`,
			expectedStatus: InvoiceStatusExpired,
		},
		{
			name:           "unknown state stays pending",
			body:           `{"error":false,"id":"inv_1","state":"brand_new_state","amount":"50"}`,
			expectedStatus: InvoiceStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/invoice/info/", r.URL.Path)
				var req crystalPayInfoReq
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "inv_1", req.ID)
				_, _ = w.Write([]byte(tt.body))
			})

			inv, err := client.GetInvoice(context.Background(), "inv_1")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, inv.Status)
			assert.True(t, inv.Amount.Equal(decimal.NewFromInt(50)))
			if tt.expectExpiry {
				require.NotNil(t, inv.ExpiresAt)
				assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), *inv.ExpiresAt)
			} else {
				assert.Nil(t, inv.ExpiresAt)
			}

			status, err := client.CheckStatus(context.Background(), "inv_1")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, status)
		})
	}
}

func TestCrystalPayClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"error":false,"id":"inv_1","state":"notpayed","amount":"10"}`))
	})

	status, err := client.CheckStatus(context.Background(), "inv_1")
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPending, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCrystalPayClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, err := client.CheckStatus(context.Background(), "inv_1")
	require.Error(t, err)
	assert.Equal(t, InvoiceStatusPending, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
}

func TestCrystalPayClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.GetInvoice(context.Background(), "inv_1")
	require.Error(t, err)
	assert.True(t, IsPaymentError(err))
	assert.False(t, IsPermanent(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCrystalPayClient_MalformedResponse(t *testing.T) {
	var calls int32
	client := newTestCrystalPay(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.GetInvoice(context.Background(), "inv_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCrystalPayClient_VerifyCallbackSignature(t *testing.T) {
	client, err := NewCrystalPayClient(CrystalPayOptions{Login: "shop", Secret: "secret", Salt: "salt"})
	require.NoError(t, err)

	sum := sha1.Sum([]byte("inv_1:salt"))
	valid := hex.EncodeToString(sum[:])

	assert.True(t, client.VerifyCallbackSignature("inv_1", valid))
	assert.False(t, client.VerifyCallbackSignature("inv_2", valid))
	assert.False(t, client.VerifyCallbackSignature("inv_1", "deadbeef"))
	assert.False(t, client.VerifyCallbackSignature("inv_1", ""))

	noSalt, err := NewCrystalPayClient(CrystalPayOptions{Login: "shop", Secret: "secret"})
	require.NoError(t, err)
	assert.False(t, noSalt.VerifyCallbackSignature("inv_1", valid))
}
