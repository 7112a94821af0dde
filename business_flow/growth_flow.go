package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// GrowthResult is what the growth collaborator decided for one top-up
type GrowthResult struct {
	BonusApplied bool
	OfferCreated bool
	Message      string
}

// GrowthCollaborator owns promotional state. Both calls are idempotent and never touch the purchasing balance.
type GrowthCollaborator interface {
	HandleTopUpSuccess(ctx context.Context, userID, topUpID uint, amount decimal.Decimal) (GrowthResult, error)
	// MaybeSendCampaign reports whether a promotional push may be sent now and reserves the cooldown window
	MaybeSendCampaign(ctx context.Context, userID uint) (bool, error)
}

// RedisGrowthFlow keeps cumulative deposits, offers and cooldowns in Redis
type RedisGrowthFlow struct {
	rc     redis.Cmdable
	prefix string
	cfg    config.GrowthConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewRedisGrowthFlow(rc redis.Cmdable, prefix string, cfg config.GrowthConfig, logger *zap.Logger) *RedisGrowthFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CampaignCooldown <= 0 {
		cfg.CampaignCooldown = utils.DefaultCampaignCooldown
	}
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 7 * 24 * time.Hour
	}
	return &RedisGrowthFlow{
		rc:     rc,
		prefix: prefix,
		cfg:    cfg,
		now:    utils.UTCNow,
		logger: logger,
	}
}

// processedTTL bounds how long a top-up marker is kept; reconcile never revisits older top-ups
const processedTTL = 90 * 24 * time.Hour

// recordDepositScript adds the deposit and sets the processed marker in one step.
// A failed INCRBY aborts before the marker is written so a redelivery is counted.
// Returns nil when the top-up was already recorded.
var recordDepositScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return false
end
local total = redis.call("INCRBY", KEYS[2], ARGV[3])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return total
`)

func (g *RedisGrowthFlow) key(parts ...string) string {
	k := g.prefix + "growth"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// HandleTopUpSuccess records the deposit once per top-up and decides on reactivation or upsell offers
func (g *RedisGrowthFlow) HandleTopUpSuccess(ctx context.Context, userID, topUpID uint, amount decimal.Decimal) (GrowthResult, error) {
	var result GrowthResult

	uid := strconv.FormatUint(uint64(userID), 10)
	cents := amount.Shift(2).Round(0).IntPart()
	totalCents, err := recordDepositScript.Run(ctx, g.rc,
		[]string{g.key("processed", strconv.FormatUint(uint64(topUpID), 10)), g.key("deposit", uid)},
		uid, processedTTL.Milliseconds(), cents,
	).Int64()
	if errors.Is(err, redis.Nil) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("growth: record deposit: %w", err)
	}
	total := decimal.New(totalCents, -2)
	previous := decimal.New(totalCents-cents, -2)

	now := g.now()
	prevSeen, err := g.rc.GetSet(ctx, g.key("last_top_up", uid), now.Unix()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return result, fmt.Errorf("growth: update last top-up: %w", err)
	}

	if g.cfg.ReactivationAfter > 0 && prevSeen != "" {
		if ts, perr := strconv.ParseInt(prevSeen, 10, 64); perr == nil && now.Sub(time.Unix(ts, 0)) >= g.cfg.ReactivationAfter {
			created, err := g.rc.SetNX(ctx, g.key("offer", uid), "reactivation", g.cfg.OfferTTL).Result()
			if err != nil {
				return result, fmt.Errorf("growth: create reactivation offer: %w", err)
			}
			if created {
				result.OfferCreated = true
				result.Message = "Welcome back! A reactivation offer is waiting for you."
			}
		}
	}

	threshold := g.cfg.UpsellThreshold
	if threshold.IsPositive() && previous.LessThan(threshold) && !total.LessThan(threshold) && g.cfg.UpsellBonusPercent.IsPositive() {
		bonus := amount.Mul(g.cfg.UpsellBonusPercent).Div(hundred).Round(2)
		if err := g.rc.Set(ctx, g.key("bonus", uid), bonus.String(), g.cfg.OfferTTL).Err(); err != nil {
			return result, fmt.Errorf("growth: store upsell bonus: %w", err)
		}
		result.BonusApplied = true
		result.Message = fmt.Sprintf("You reached %s USD in top-ups: a %s USD bonus applies to your next order.", threshold.String(), bonus.String())
	}

	g.logger.Debug("growth state updated",
		zap.Uint("user_id", userID),
		zap.Uint("top_up_id", topUpID),
		zap.String("total_deposit", total.String()),
		zap.Bool("bonus_applied", result.BonusApplied),
		zap.Bool("offer_created", result.OfferCreated),
	)
	return result, nil
}

// MaybeSendCampaign allows at most one promotional push per user per cooldown window
func (g *RedisGrowthFlow) MaybeSendCampaign(ctx context.Context, userID uint) (bool, error) {
	uid := strconv.FormatUint(uint64(userID), 10)
	ok, err := g.rc.SetNX(ctx, g.key("campaign_cooldown", uid), g.now().Unix(), g.cfg.CampaignCooldown).Result()
	if err != nil {
		return false, fmt.Errorf("growth: campaign cooldown: %w", err)
	}
	return ok, nil
}

// NoopGrowthCollaborator is used when Redis is disabled
type NoopGrowthCollaborator struct{}

func (NoopGrowthCollaborator) HandleTopUpSuccess(ctx context.Context, userID, topUpID uint, amount decimal.Decimal) (GrowthResult, error) {
	return GrowthResult{}, nil
}

func (NoopGrowthCollaborator) MaybeSendCampaign(ctx context.Context, userID uint) (bool, error) {
	return false, nil
}
