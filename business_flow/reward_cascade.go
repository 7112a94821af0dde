package businessflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// Cascade step names, also used as metric labels
const (
	CascadeStepReferral     = "referral"
	CascadeStepGrowth       = "growth"
	CascadeStepNotification = "notification"
	CascadeStepCampaign     = "campaign"
)

// CascadeReport summarizes one cascade run. Failed steps are listed in Errors.
type CascadeReport struct {
	Referral     *ReferralResult
	Growth       *GrowthResult
	Notified     bool
	CampaignSent bool
	Errors       map[string]error
}

// RewardCascade runs the post-credit side effects for a top-up
type RewardCascade interface {
	RewardDispatcher
	Dispatch(ctx context.Context, credited CreditedTopUp) CascadeReport
}

// RewardCascadeImpl implements RewardCascade. Each step is isolated; none can undo the credit.
type RewardCascadeImpl struct {
	referral  ReferralFlow
	growth    GrowthCollaborator
	notifier  services.NotificationService
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
}

func NewRewardCascade(
	referral ReferralFlow,
	growth GrowthCollaborator,
	notifier services.NotificationService,
	auditRepo repository.AuditLogRepository,
	logger *zap.Logger,
) RewardCascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	if growth == nil {
		growth = NoopGrowthCollaborator{}
	}
	return &RewardCascadeImpl{
		referral:  referral,
		growth:    growth,
		notifier:  notifier,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// DispatchRewards runs the cascade synchronously
func (c *RewardCascadeImpl) DispatchRewards(ctx context.Context, credited CreditedTopUp) {
	c.Dispatch(ctx, credited)
}

// Dispatch runs referral, growth, notification and campaign steps in order
func (c *RewardCascadeImpl) Dispatch(ctx context.Context, credited CreditedTopUp) CascadeReport {
	report := CascadeReport{Errors: make(map[string]error)}

	c.runStep(ctx, credited, CascadeStepReferral, &report, func() error {
		if c.referral == nil {
			return nil
		}
		res, err := c.referral.ApplyReferralReward(ctx, credited)
		if err != nil {
			return err
		}
		report.Referral = res
		return nil
	})

	c.runStep(ctx, credited, CascadeStepGrowth, &report, func() error {
		res, err := c.growth.HandleTopUpSuccess(ctx, credited.UserID, credited.TopUpID, credited.Amount)
		if err != nil {
			return err
		}
		report.Growth = &res
		return nil
	})

	c.runStep(ctx, credited, CascadeStepNotification, &report, func() error {
		if c.notifier == nil {
			return nil
		}
		return c.notify(ctx, credited, &report)
	})

	c.runStep(ctx, credited, CascadeStepCampaign, &report, func() error {
		allowed, err := c.growth.MaybeSendCampaign(ctx, credited.UserID)
		if err != nil {
			return err
		}
		if !allowed || c.notifier == nil || credited.TelegramID == 0 {
			return nil
		}
		if err := c.notifier.NotifyUser(ctx, credited.TelegramID, campaignMessage); err != nil {
			return err
		}
		report.CampaignSent = true
		return nil
	})

	return report
}

const campaignMessage = "🔥 Your balance is ready. Check out this week's VPS and domain deals in the shop."

func (c *RewardCascadeImpl) notify(ctx context.Context, credited CreditedTopUp, report *CascadeReport) error {
	var firstErr error

	if credited.TelegramID != 0 {
		text := fmt.Sprintf("✅ Your balance was topped up by <b>%s USD</b>. Current balance: <b>%s USD</b>.",
			credited.Amount.StringFixed(2), credited.BalanceAfter.StringFixed(2))
		if report.Growth != nil && report.Growth.Message != "" {
			text += "\n\n" + report.Growth.Message
		}
		if err := c.notifier.NotifyUser(ctx, credited.TelegramID, text); err != nil {
			firstErr = err
		} else {
			report.Notified = true
		}
	}

	if ref := report.Referral; ref != nil && ref.Applied && ref.ReferrerTelegramID != 0 {
		text := fmt.Sprintf("🎁 You earned <b>%s USD</b> referral reward.", ref.Reward.RewardAmount.StringFixed(2))
		if err := c.notifier.NotifyUser(ctx, ref.ReferrerTelegramID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	adminText := fmt.Sprintf("💰 Top-up #%d: user %d paid %s USD via %s.",
		credited.TopUpID, credited.UserID, credited.Amount.StringFixed(2), credited.Provider)
	if err := c.notifier.NotifyAdmins(ctx, adminText); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func (c *RewardCascadeImpl) runStep(ctx context.Context, credited CreditedTopUp, step string, report *CascadeReport, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s step: %v", step, r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}

	report.Errors[step] = err
	cascadeStepFailures.WithLabelValues(step).Inc()
	c.logger.Error("reward cascade step failed",
		zap.String("step", step),
		zap.Uint("top_up_id", credited.TopUpID),
		zap.Uint("user_id", credited.UserID),
		zap.Error(err),
	)

	_ = createAuditLog(ctx, c.auditRepo, auditEntry{
		UserID:      &credited.UserID,
		TopUpID:     &credited.TopUpID,
		Action:      models.AuditActionCascadeStepFailed,
		Description: "Reward cascade step failed: " + step,
		Success:     false,
		ErrorMsg:    utils.ToPtr(err.Error()),
	}, nil)
}

// RewardQueue defers the cascade to a bounded worker pool so webhook responses stay fast
type RewardQueue struct {
	cascade RewardCascade
	jobs    chan CreditedTopUp
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewRewardQueue(cascade RewardCascade, workers, size int, logger *zap.Logger) *RewardQueue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardQueue{
		cascade: cascade,
		jobs:    make(chan CreditedTopUp, size),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers and returns a stop function that drains queued jobs
func (q *RewardQueue) Start(parent context.Context) func() {
	ctx := context.WithoutCancel(parent)

	q.mu.Lock()
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				rewardQueueDepth.Dec()
				q.cascade.Dispatch(ctx, job)
			}
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			q.closed = true
			close(q.jobs)
			q.mu.Unlock()
			q.wg.Wait()
		})
	}
}

// DispatchRewards enqueues the job. When the queue is full, stopped or not started
// the cascade runs inline so no reward is lost.
func (q *RewardQueue) DispatchRewards(ctx context.Context, credited CreditedTopUp) {
	q.mu.RLock()
	if q.started && !q.closed {
		select {
		case q.jobs <- credited:
			rewardQueueDepth.Inc()
			q.mu.RUnlock()
			return
		default:
		}
	}
	q.mu.RUnlock()

	q.logger.Warn("reward queue unavailable, running cascade inline", zap.Uint("top_up_id", credited.TopUpID))
	q.cascade.Dispatch(context.WithoutCancel(ctx), credited)
}
