package businessflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
)

// ReconcileOutcome tells the caller what a reconcile call did
type ReconcileOutcome string

const (
	ReconcileOutcomeCredited       ReconcileOutcome = "credited"        // balance credited by this call
	ReconcileOutcomeAlreadyApplied ReconcileOutcome = "already_applied" // another caller credited first
	ReconcileOutcomeExpired        ReconcileOutcome = "expired"         // moved to expired by this call
	ReconcileOutcomePending        ReconcileOutcome = "pending"         // nothing to do yet
	ReconcileOutcomeIgnored        ReconcileOutcome = "ignored"         // top-up was already terminal
)

// ReconcileResult is returned by ReconcileInvoice
type ReconcileResult struct {
	TopUpID uint
	Outcome ReconcileOutcome
	Credit  *CreditResult
}

// CreditResult is returned by CreditTopUp. Applied is false for a no-op.
type CreditResult struct {
	Applied       bool
	TopUp         *models.TopUp
	User          *models.User
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// CreditedTopUp is the input of the reward cascade
type CreditedTopUp struct {
	TopUpID       uint
	CorrelationID uuid.UUID
	UserID        uint
	TelegramID    int64
	Provider      models.PaymentProvider
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// RewardDispatcher runs the reward cascade for a credited top-up, now or later
type RewardDispatcher interface {
	DispatchRewards(ctx context.Context, credited CreditedTopUp)
}

// ReconcileFlow is the single place where an observed provider status turns into a ledger transition
type ReconcileFlow interface {
	ReconcileInvoice(ctx context.Context, topUpID uint, observed services.InvoiceStatus) (*ReconcileResult, error)
	CreditTopUp(ctx context.Context, topUpID uint) (*CreditResult, error)
	ExpireTopUp(ctx context.Context, topUpID uint, reason string) (bool, error)
}

// ReconcileFlowImpl implements ReconcileFlow
type ReconcileFlowImpl struct {
	topUpRepo     repository.TopUpRepository
	userRepo      repository.UserRepository
	balanceTxRepo repository.BalanceTransactionRepository
	auditRepo     repository.AuditLogRepository
	transactor    repository.Transactor
	rewards       RewardDispatcher
	logger        *zap.Logger
}

func NewReconcileFlow(
	topUpRepo repository.TopUpRepository,
	userRepo repository.UserRepository,
	balanceTxRepo repository.BalanceTransactionRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	rewards RewardDispatcher,
	logger *zap.Logger,
) ReconcileFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileFlowImpl{
		topUpRepo:     topUpRepo,
		userRepo:      userRepo,
		balanceTxRepo: balanceTxRepo,
		auditRepo:     auditRepo,
		transactor:    transactor,
		rewards:       rewards,
		logger:        logger,
	}
}

// ReconcileInvoice maps an observed status onto the ledger:
// paid credits (then dispatches rewards), expired and failed expire, pending does nothing.
func (f *ReconcileFlowImpl) ReconcileInvoice(ctx context.Context, topUpID uint, observed services.InvoiceStatus) (*ReconcileResult, error) {
	topUp, err := f.topUpRepo.ByID(ctx, topUpID)
	if err != nil {
		return nil, fmt.Errorf("failed to load top-up %d: %w", topUpID, err)
	}
	if topUp == nil {
		return nil, ErrTopUpNotFound
	}

	result := &ReconcileResult{TopUpID: topUpID}
	defer func() {
		reconcileTotal.WithLabelValues(string(topUp.Provider), string(observed), string(result.Outcome)).Inc()
	}()

	if topUp.Status.IsTerminal() {
		result.Outcome = ReconcileOutcomeIgnored
		return result, nil
	}

	switch observed {
	case services.InvoiceStatusPaid:
		credit, err := f.CreditTopUp(ctx, topUpID)
		if err != nil {
			result.Outcome = ReconcileOutcomePending
			return nil, err
		}
		result.Credit = credit
		if !credit.Applied {
			result.Outcome = ReconcileOutcomeAlreadyApplied
			return result, nil
		}
		result.Outcome = ReconcileOutcomeCredited
		f.afterCredit(ctx, credit)

	case services.InvoiceStatusExpired, services.InvoiceStatusFailed:
		moved, err := f.ExpireTopUp(ctx, topUpID, "provider:"+string(observed))
		if err != nil {
			result.Outcome = ReconcileOutcomePending
			return nil, err
		}
		if moved {
			result.Outcome = ReconcileOutcomeExpired
		} else {
			result.Outcome = ReconcileOutcomeIgnored
		}

	default:
		result.Outcome = ReconcileOutcomePending
	}

	return result, nil
}

// CreditTopUp is the only writer of User.Balance for top-ups.
// Row locks plus the conditional status update make concurrent calls credit at most once.
func (f *ReconcileFlowImpl) CreditTopUp(ctx context.Context, topUpID uint) (*CreditResult, error) {
	result := &CreditResult{}

	err := f.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		topUp, err := f.topUpRepo.ByIDForUpdate(txCtx, topUpID)
		if err != nil {
			return err
		}
		if topUp == nil {
			return ErrTopUpNotFound
		}
		result.TopUp = topUp
		if topUp.Status != models.TopUpStatusCreated {
			return nil
		}

		user, err := f.userRepo.ByIDForUpdate(txCtx, topUp.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		result.User = user

		moved, err := f.topUpRepo.TransitionStatus(txCtx, topUp.ID, models.TopUpStatusCreated, models.TopUpStatusCompleted, "provider:paid")
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		if err := f.userRepo.IncreaseBalance(txCtx, user.ID, topUp.Amount); err != nil {
			return err
		}

		before := user.Balance
		after := before.Add(topUp.Amount)
		entry := &models.BalanceTransaction{
			CorrelationID: topUp.CorrelationID,
			Type:          models.BalanceTransactionTypeTopUpCredit,
			TopUpID:       topUp.ID,
			UserID:        user.ID,
			Amount:        topUp.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   fmt.Sprintf("top-up %s via %s", topUp.OrderID, topUp.Provider),
		}
		if err := f.balanceTxRepo.Save(txCtx, entry); err != nil {
			return err
		}

		topUp.Status = models.TopUpStatusCompleted
		user.Balance = after
		result.Applied = true
		result.BalanceBefore = before
		result.BalanceAfter = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExpireTopUp moves a created top-up to expired and reports whether this call did it
func (f *ReconcileFlowImpl) ExpireTopUp(ctx context.Context, topUpID uint, reason string) (bool, error) {
	moved, err := f.topUpRepo.TransitionStatus(ctx, topUpID, models.TopUpStatusCreated, models.TopUpStatusExpired, reason)
	if err != nil {
		return false, err
	}
	if moved {
		_ = createAuditLog(ctx, f.auditRepo, auditEntry{
			TopUpID:     &topUpID,
			Action:      models.AuditActionTopUpExpired,
			Description: "Top-up expired: " + reason,
			Success:     true,
		}, nil)
	}
	return moved, nil
}

func (f *ReconcileFlowImpl) afterCredit(ctx context.Context, credit *CreditResult) {
	topUp, user := credit.TopUp, credit.User

	creditedAmountTotal.WithLabelValues(string(topUp.Provider)).Add(topUp.Amount.InexactFloat64())
	f.logger.Info("top-up credited",
		zap.Uint("top_up_id", topUp.ID),
		zap.Uint("user_id", user.ID),
		zap.String("provider", string(topUp.Provider)),
		zap.String("order_id", topUp.OrderID),
		zap.String("amount", topUp.Amount.String()),
		zap.String("balance_after", credit.BalanceAfter.String()),
	)

	if err := createAuditLog(ctx, f.auditRepo, auditEntry{
		UserID:      &user.ID,
		TopUpID:     &topUp.ID,
		Action:      models.AuditActionTopUpCompleted,
		Description: fmt.Sprintf("Balance credited with %s USD", topUp.Amount.String()),
		Success:     true,
		Extra: map[string]any{
			"correlation_id": topUp.CorrelationID.String(),
			"balance_before": credit.BalanceBefore.String(),
			"balance_after":  credit.BalanceAfter.String(),
		},
	}, nil); err != nil {
		f.logger.Warn("failed to write audit log", zap.Uint("top_up_id", topUp.ID), zap.Error(err))
	}

	if f.rewards == nil {
		return
	}
	f.rewards.DispatchRewards(ctx, CreditedTopUp{
		TopUpID:       topUp.ID,
		CorrelationID: topUp.CorrelationID,
		UserID:        user.ID,
		TelegramID:    user.TelegramID,
		Provider:      topUp.Provider,
		Amount:        topUp.Amount,
		BalanceAfter:  credit.BalanceAfter,
	})
}
