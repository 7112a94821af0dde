package businessflow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	testingutil "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/testing"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

func testReferralConfig() config.ReferralConfig {
	return config.ReferralConfig{
		MinAmount:      decimal.NewFromInt(1),
		DefaultPercent: decimal.NewFromInt(10),
	}
}

// flowEnv wires the credit path over an in-memory store with a synchronous cascade
type flowEnv struct {
	store     *testingutil.MemoryStore
	notifier  *services.MockNotificationService
	referral  ReferralFlow
	cascade   RewardCascade
	reconcile ReconcileFlow
}

func newFlowEnv(t *testing.T, growth GrowthCollaborator) *flowEnv {
	t.Helper()
	store := testingutil.NewMemoryStore()
	notifier := services.NewMockNotificationService()

	referral := NewReferralFlow(store.Users(), store.ReferralRewards(), store.BalanceTransactionRepo(), store.AuditLogRepo(), store, testReferralConfig(), nil)
	cascade := NewRewardCascade(referral, growth, notifier, store.AuditLogRepo(), nil)
	reconcile := NewReconcileFlow(store.TopUps(), store.Users(), store.BalanceTransactionRepo(), store.AuditLogRepo(), store, cascade, nil)

	return &flowEnv{
		store:     store,
		notifier:  notifier,
		referral:  referral,
		cascade:   cascade,
		reconcile: reconcile,
	}
}

func (e *flowEnv) addUser(telegramID int64, referrerID *uint, percent *decimal.Decimal) *models.User {
	return e.store.AddUser(models.User{
		TelegramID:      telegramID,
		Balance:         decimal.Zero,
		ReferralBalance: decimal.Zero,
		ReferrerID:      referrerID,
		ReferralPercent: percent,
	})
}

func (e *flowEnv) addTopUp(userID uint, provider models.PaymentProvider, orderID, amount string) *models.TopUp {
	expiresAt := utils.UTCNowAdd(utils.DefaultInvoiceLifetime)
	return e.store.AddTopUp(models.TopUp{
		UserID:    userID,
		Provider:  provider,
		OrderID:   orderID,
		Amount:    decimal.RequireFromString(amount),
		PayURL:    "https://pay.example.com/" + orderID,
		Status:    models.TopUpStatusCreated,
		ExpiresAt: &expiresAt,
	})
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// stubGrowth returns fixed answers and can be told to panic or fail
type stubGrowth struct {
	result      GrowthResult
	err         error
	panicMsg    string
	allowPush   bool
	campaignErr error
	calls       int
}

func (g *stubGrowth) HandleTopUpSuccess(ctx context.Context, userID, topUpID uint, amount decimal.Decimal) (GrowthResult, error) {
	g.calls++
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	return g.result, g.err
}

func (g *stubGrowth) MaybeSendCampaign(ctx context.Context, userID uint) (bool, error) {
	return g.allowPush, g.campaignErr
}
