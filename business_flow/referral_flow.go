package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
)

var hundred = decimal.NewFromInt(100)

// ReferralResult tells whether a reward was created and why not otherwise
type ReferralResult struct {
	Applied bool
	Reason  string
	Reward  *models.ReferralReward
	// ReferrerTelegramID is set when Applied, for the referrer notification
	ReferrerTelegramID int64
}

// ReferralFlow credits referrers with a share of their referrals' top-ups
type ReferralFlow interface {
	ApplyReferralReward(ctx context.Context, credited CreditedTopUp) (*ReferralResult, error)
}

// ReferralFlowImpl implements ReferralFlow
type ReferralFlowImpl struct {
	userRepo      repository.UserRepository
	rewardRepo    repository.ReferralRewardRepository
	balanceTxRepo repository.BalanceTransactionRepository
	auditRepo     repository.AuditLogRepository
	transactor    repository.Transactor
	cfg           config.ReferralConfig
	logger        *zap.Logger
}

func NewReferralFlow(
	userRepo repository.UserRepository,
	rewardRepo repository.ReferralRewardRepository,
	balanceTxRepo repository.BalanceTransactionRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	cfg config.ReferralConfig,
	logger *zap.Logger,
) ReferralFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferralFlowImpl{
		userRepo:      userRepo,
		rewardRepo:    rewardRepo,
		balanceTxRepo: balanceTxRepo,
		auditRepo:     auditRepo,
		transactor:    transactor,
		cfg:           cfg,
		logger:        logger,
	}
}

// ApplyReferralReward creates at most one reward per top-up.
// A missing referrer or an amount at or below the threshold is not applicable, not an error.
func (f *ReferralFlowImpl) ApplyReferralReward(ctx context.Context, credited CreditedTopUp) (*ReferralResult, error) {
	if !credited.Amount.GreaterThan(f.cfg.MinAmount) {
		return &ReferralResult{Reason: "amount below threshold"}, nil
	}

	result := &ReferralResult{}
	err := f.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		referred, err := f.userRepo.ByID(txCtx, credited.UserID)
		if err != nil {
			return err
		}
		if referred == nil {
			return ErrUserNotFound
		}
		if referred.ReferrerID == nil || *referred.ReferrerID == referred.ID {
			result.Reason = "no referrer"
			return nil
		}

		existing, err := f.rewardRepo.ByTopUpID(txCtx, credited.TopUpID)
		if err != nil {
			return err
		}
		if existing != nil {
			result.Reason = "already rewarded"
			result.Reward = existing
			return nil
		}

		referrer, err := f.userRepo.ByIDForUpdate(txCtx, *referred.ReferrerID)
		if err != nil {
			return err
		}
		if referrer == nil {
			result.Reason = "referrer not found"
			return nil
		}

		percent := referrer.CommissionPercent(f.cfg.DefaultPercent)
		amount := credited.Amount.Mul(percent).Div(hundred).Round(8)
		if !amount.IsPositive() {
			result.Reason = "zero reward"
			return nil
		}

		reward := &models.ReferralReward{
			CorrelationID: credited.CorrelationID,
			ReferrerID:    referrer.ID,
			ReferredID:    referred.ID,
			TopUpID:       credited.TopUpID,
			TopUpAmount:   credited.Amount,
			Percent:       percent,
			RewardAmount:  amount,
		}
		if err := f.rewardRepo.Save(txCtx, reward); err != nil {
			return err
		}

		if err := f.userRepo.IncreaseReferralBalance(txCtx, referrer.ID, amount); err != nil {
			return err
		}

		entry := &models.BalanceTransaction{
			CorrelationID: credited.CorrelationID,
			Type:          models.BalanceTransactionTypeReferralReward,
			TopUpID:       credited.TopUpID,
			UserID:        referrer.ID,
			Amount:        amount,
			BalanceBefore: referrer.ReferralBalance,
			BalanceAfter:  referrer.ReferralBalance.Add(amount),
			Description:   fmt.Sprintf("referral reward %s%% of %s from user %d", percent.String(), credited.Amount.String(), referred.ID),
		}
		if err := f.balanceTxRepo.Save(txCtx, entry); err != nil {
			return err
		}

		result.Applied = true
		result.Reward = reward
		result.ReferrerTelegramID = referrer.TelegramID
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateReferralReward) {
		return &ReferralResult{Reason: "already rewarded"}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Applied {
		f.logger.Info("referral reward credited",
			zap.Uint("top_up_id", credited.TopUpID),
			zap.Uint("referrer_id", result.Reward.ReferrerID),
			zap.String("reward", result.Reward.RewardAmount.String()),
		)
		_ = createAuditLog(ctx, f.auditRepo, auditEntry{
			UserID:      &result.Reward.ReferrerID,
			TopUpID:     &credited.TopUpID,
			Action:      models.AuditActionReferralRewarded,
			Description: fmt.Sprintf("Referral reward %s USD", result.Reward.RewardAmount.String()),
			Success:     true,
		}, nil)
	}

	return result, nil
}
