package businessflow

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	testingutil "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/testing"
)

const webhookTestToken = "12345:AAwebhook"

type webhookEnv struct {
	*flowEnv
	flow       WebhookFlow
	crystalPay *testingutil.FakeProvider
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	env := newFlowEnv(t, nil)

	cryptoBotClient, err := services.NewCryptoBotClient(services.CryptoBotOptions{Token: webhookTestToken})
	require.NoError(t, err)
	crystalPayClient, err := services.NewCrystalPayClient(services.CrystalPayOptions{Login: "shop", Secret: "secret", Salt: "salt"})
	require.NoError(t, err)

	fake := testingutil.NewFakeProvider(models.PaymentProviderCrystalPay)
	flow := NewWebhookFlow(env.store.TopUps(), env.store.AuditLogRepo(), env.reconcile,
		cryptoBotClient, crystalPayClient, services.NewProviderRegistry(fake), nil)

	return &webhookEnv{flowEnv: env, flow: flow, crystalPay: fake}
}

func cryptoBotBody(updateType string, invoiceID int64, status string) []byte {
	return []byte(fmt.Sprintf(`{"update_id":1,"update_type":%q,"request_date":"2026-03-01T10:00:00Z","payload":{"invoice_id":%d,"status":%q,"asset":"USDT","amount":"50"}}`,
		updateType, invoiceID, status))
}

func signCryptoBot(body []byte) string {
	return hex.EncodeToString(services.SignCryptoBotBody(webhookTestToken, body))
}

func crystalPayBody(id, state string) []byte {
	sum := sha1.Sum([]byte(id + ":salt"))
	return []byte(fmt.Sprintf(`{"id":%q,"signature":%q,"state":%q}`, id, hex.EncodeToString(sum[:]), state))
}

func TestHandleCryptoBotWebhook(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(env *webhookEnv) (body []byte, signature string)
		expectErr     error
		expectOutcome string
		expectBalance string
	}{
		{
			name: "paid invoice is credited",
			setup: func(env *webhookEnv) ([]byte, string) {
				body := cryptoBotBody("invoice_paid", 4242, "paid")
				return body, signCryptoBot(body)
			},
			expectOutcome: string(ReconcileOutcomeCredited),
			expectBalance: "50",
		},
		{
			name: "bad signature is rejected",
			setup: func(env *webhookEnv) ([]byte, string) {
				body := cryptoBotBody("invoice_paid", 4242, "paid")
				return body, hex.EncodeToString(services.SignCryptoBotBody("forged", body))
			},
			expectErr:     ErrInvalidWebhookSignature,
			expectBalance: "0",
		},
		{
			name: "missing signature is rejected",
			setup: func(env *webhookEnv) ([]byte, string) {
				return cryptoBotBody("invoice_paid", 4242, "paid"), ""
			},
			expectErr:     ErrInvalidWebhookSignature,
			expectBalance: "0",
		},
		{
			name: "malformed body with valid signature",
			setup: func(env *webhookEnv) ([]byte, string) {
				body := []byte(`{"update_type":`)
				return body, signCryptoBot(body)
			},
			expectErr:     ErrInvalidWebhookPayload,
			expectBalance: "0",
		},
		{
			name: "other update types are skipped",
			setup: func(env *webhookEnv) ([]byte, string) {
				body := cryptoBotBody("invoice_created", 4242, "active")
				return body, signCryptoBot(body)
			},
			expectOutcome: WebhookOutcomeSkipped,
			expectBalance: "0",
		},
		{
			name: "unknown invoice is acknowledged",
			setup: func(env *webhookEnv) ([]byte, string) {
				body := cryptoBotBody("invoice_paid", 1, "paid")
				return body, signCryptoBot(body)
			},
			expectOutcome: WebhookOutcomeUnknownInvoice,
			expectBalance: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newWebhookEnv(t)
			user := env.addUser(1001, nil, nil)
			env.addTopUp(user.ID, models.PaymentProviderCryptoBot, "4242", "50")

			body, signature := tt.setup(env)
			resp, err := env.flow.HandleCryptoBotWebhook(context.Background(), body, signature, NewClientMetadata("1.2.3.4", "CryptoBot"))
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectOutcome, resp.Outcome)
			}
			requireDecimal(t, tt.expectBalance, env.store.User(user.ID).Balance)

			if tt.expectErr == ErrInvalidWebhookSignature {
				assert.Contains(t, env.store.AuditActions(), models.AuditActionWebhookRejected)
			}
		})
	}
}

func TestHandleCryptoBotWebhook_RedeliveryIsIgnored(t *testing.T) {
	env := newWebhookEnv(t)
	user := env.addUser(1001, nil, nil)
	env.addTopUp(user.ID, models.PaymentProviderCryptoBot, "4242", "50")

	body := cryptoBotBody("invoice_paid", 4242, "paid")
	for i, expected := range []string{string(ReconcileOutcomeCredited), string(ReconcileOutcomeIgnored), string(ReconcileOutcomeIgnored)} {
		resp, err := env.flow.HandleCryptoBotWebhook(context.Background(), body, signCryptoBot(body), nil)
		require.NoError(t, err, "delivery %d", i)
		assert.Equal(t, expected, resp.Outcome, "delivery %d", i)
	}
	requireDecimal(t, "50", env.store.User(user.ID).Balance)
}

func TestHandleCrystalPayCallback(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		confirmed     services.InvoiceStatus
		expectErr     error
		expectOutcome string
		expectBalance string
		expectStatus  models.TopUpStatus
	}{
		{
			name:          "paid and confirmed by provider",
			body:          crystalPayBody("inv_1", "payed"),
			confirmed:     services.InvoiceStatusPaid,
			expectOutcome: string(ReconcileOutcomeCredited),
			expectBalance: "50",
			expectStatus:  models.TopUpStatusCompleted,
		},
		{
			name:          "paid claim not confirmed stays pending",
			body:          crystalPayBody("inv_1", "payed"),
			confirmed:     services.InvoiceStatusPending,
			expectOutcome: string(ReconcileOutcomePending),
			expectBalance: "0",
			expectStatus:  models.TopUpStatusCreated,
		},
		{
			name:          "failed invoice expires",
			body:          crystalPayBody("inv_1", "failed"),
			confirmed:     services.InvoiceStatusPending,
			expectOutcome: string(ReconcileOutcomeExpired),
			expectBalance: "0",
			expectStatus:  models.TopUpStatusExpired,
		},
		{
			name:          "signature for another invoice",
			body:          []byte(`{"id":"inv_1","signature":"0000000000000000000000000000000000000000","state":"payed"}`),
			expectErr:     ErrInvalidWebhookSignature,
			expectBalance: "0",
			expectStatus:  models.TopUpStatusCreated,
		},
		{
			name:          "missing fields",
			body:          []byte(`{"id":"inv_1"}`),
			expectErr:     ErrInvalidWebhookPayload,
			expectBalance: "0",
			expectStatus:  models.TopUpStatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newWebhookEnv(t)
			user := env.addUser(1001, nil, nil)
			topUp := env.addTopUp(user.ID, models.PaymentProviderCrystalPay, "inv_1", "50")
			env.crystalPay.SetStatus("inv_1", tt.confirmed)

			resp, err := env.flow.HandleCrystalPayCallback(context.Background(), tt.body, nil)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectOutcome, resp.Outcome)
			}
			requireDecimal(t, tt.expectBalance, env.store.User(user.ID).Balance)
			assert.Equal(t, tt.expectStatus, env.store.TopUp(topUp.ID).Status)
		})
	}
}

func TestWebhookFlow_ProviderNotConfigured(t *testing.T) {
	env := newFlowEnv(t, nil)
	flow := NewWebhookFlow(env.store.TopUps(), env.store.AuditLogRepo(), env.reconcile, nil, nil, services.NewProviderRegistry(), nil)

	_, err := flow.HandleCryptoBotWebhook(context.Background(), []byte(`{}`), "abc", nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = flow.HandleCrystalPayCallback(context.Background(), []byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
