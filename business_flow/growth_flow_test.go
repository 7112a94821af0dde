package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
)

func newTestGrowth(t *testing.T, cfg config.GrowthConfig) (*RedisGrowthFlow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisGrowthFlow(rc, "sephora:", cfg, nil), mr
}

func TestGrowth_UpsellThresholdCrossing(t *testing.T) {
	g, mr := newTestGrowth(t, config.GrowthConfig{
		UpsellThreshold:    decimal.NewFromInt(100),
		UpsellBonusPercent: decimal.NewFromInt(10),
	})
	ctx := context.Background()

	tests := []struct {
		topUpID     uint
		amount      string
		expectBonus bool
		expectTotal string
	}{
		{topUpID: 1, amount: "60", expectTotal: "6000"},
		{topUpID: 2, amount: "50", expectBonus: true, expectTotal: "11000"},
		{topUpID: 3, amount: "10", expectTotal: "12000"},
	}
	for _, tt := range tests {
		res, err := g.HandleTopUpSuccess(ctx, 7, tt.topUpID, decimal.RequireFromString(tt.amount))
		require.NoError(t, err)
		assert.Equal(t, tt.expectBonus, res.BonusApplied, "top-up %d", tt.topUpID)

		total, err := mr.Get("sephora:growth:deposit:7")
		require.NoError(t, err)
		assert.Equal(t, tt.expectTotal, total)
	}

	bonus, err := mr.Get("sephora:growth:bonus:7")
	require.NoError(t, err)
	assert.Equal(t, "5", bonus)
}

func TestGrowth_TopUpProcessedOnce(t *testing.T) {
	g, mr := newTestGrowth(t, config.GrowthConfig{
		UpsellThreshold:    decimal.NewFromInt(10),
		UpsellBonusPercent: decimal.NewFromInt(10),
	})
	ctx := context.Background()

	first, err := g.HandleTopUpSuccess(ctx, 7, 42, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.True(t, first.BonusApplied)
	assert.NotEmpty(t, first.Message)

	again, err := g.HandleTopUpSuccess(ctx, 7, 42, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.Equal(t, GrowthResult{}, again)

	total, err := mr.Get("sephora:growth:deposit:7")
	require.NoError(t, err)
	assert.Equal(t, "2000", total)
}

func TestGrowth_FailedDepositIsCountedOnRedelivery(t *testing.T) {
	g, mr := newTestGrowth(t, config.GrowthConfig{})
	ctx := context.Background()

	require.NoError(t, mr.Set("sephora:growth:deposit:7", "not-a-number"))
	_, err := g.HandleTopUpSuccess(ctx, 7, 42, decimal.NewFromInt(20))
	require.Error(t, err)
	assert.False(t, mr.Exists("sephora:growth:processed:42"))

	require.NoError(t, mr.Set("sephora:growth:deposit:7", "1000"))
	_, err = g.HandleTopUpSuccess(ctx, 7, 42, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.True(t, mr.Exists("sephora:growth:processed:42"))

	_, err = g.HandleTopUpSuccess(ctx, 7, 42, decimal.NewFromInt(20))
	require.NoError(t, err)

	total, err := mr.Get("sephora:growth:deposit:7")
	require.NoError(t, err)
	assert.Equal(t, "3000", total)
}

func TestGrowth_ReactivationOffer(t *testing.T) {
	g, _ := newTestGrowth(t, config.GrowthConfig{
		ReactivationAfter: 30 * 24 * time.Hour,
		OfferTTL:          7 * 24 * time.Hour,
	})
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g.now = func() time.Time { return start }
	res, err := g.HandleTopUpSuccess(ctx, 7, 1, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, res.OfferCreated)

	g.now = func() time.Time { return start.Add(10 * 24 * time.Hour) }
	res, err = g.HandleTopUpSuccess(ctx, 7, 2, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, res.OfferCreated)

	g.now = func() time.Time { return start.Add(45 * 24 * time.Hour) }
	res, err = g.HandleTopUpSuccess(ctx, 7, 3, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, res.OfferCreated)
	assert.Contains(t, res.Message, "Welcome back")

	// an open offer is not issued twice
	g.now = func() time.Time { return start.Add(90 * 24 * time.Hour) }
	res, err = g.HandleTopUpSuccess(ctx, 7, 4, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, res.OfferCreated)
}

func TestGrowth_CampaignCooldown(t *testing.T) {
	g, mr := newTestGrowth(t, config.GrowthConfig{CampaignCooldown: time.Hour})
	ctx := context.Background()

	ok, err := g.MaybeSendCampaign(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.MaybeSendCampaign(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	// other users have their own window
	ok, err = g.MaybeSendCampaign(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Hour + time.Second)
	ok, err = g.MaybeSendCampaign(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrowth_RedisErrorsAreReturned(t *testing.T) {
	g, mr := newTestGrowth(t, config.GrowthConfig{})
	mr.SetError("LOADING redis is loading")

	_, err := g.HandleTopUpSuccess(context.Background(), 7, 1, decimal.NewFromInt(5))
	assert.Error(t, err)

	ok, err := g.MaybeSendCampaign(context.Background(), 7)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNoopGrowthCollaborator(t *testing.T) {
	var g GrowthCollaborator = NoopGrowthCollaborator{}

	res, err := g.HandleTopUpSuccess(context.Background(), 1, 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, GrowthResult{}, res)

	ok, err := g.MaybeSendCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
