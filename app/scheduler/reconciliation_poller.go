// Package scheduler contains background workers driven by a fixed schedule
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	businessflow "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/business_flow"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// TickReport summarizes one sweep over pending top-ups
type TickReport struct {
	Checked  int
	Credited int
	Expired  int
	Pending  int
	Ignored  int
	Failed   int
}

// ReconciliationPoller periodically asks providers about every created top-up
// and feeds the observed status into ReconcileInvoice. It holds no state between ticks.
type ReconciliationPoller struct {
	topUpRepo repository.TopUpRepository
	providers services.ProviderRegistry
	reconcile businessflow.ReconcileFlow
	interval  time.Duration
	batchSize int
	// invoiceTimeout bounds each provider lookup so one hung invoice cannot stall the sweep
	invoiceTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func NewReconciliationPoller(
	topUpRepo repository.TopUpRepository,
	providers services.ProviderRegistry,
	reconcile businessflow.ReconcileFlow,
	cfg config.ReconciliationConfig,
	logger *zap.Logger,
) *ReconciliationPoller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = utils.DefaultReconcileInterval
	}
	invoiceTimeout := cfg.InvoiceTimeout
	if invoiceTimeout <= 0 {
		invoiceTimeout = utils.DefaultInvoiceCheckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationPoller{
		topUpRepo:      topUpRepo,
		providers:      providers,
		reconcile:      reconcile,
		interval:       interval,
		batchSize:      cfg.BatchSize,
		invoiceTimeout: invoiceTimeout,
		now:            utils.UTCNow,
		logger:         logger.Named("reconciliation_poller"),
	}
}

// Start schedules the sweep and returns a stop function that waits for a running tick
func (p *ReconciliationPoller) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.Tick(ctx)
	}); err != nil {
		p.logger.Error("failed to schedule reconciliation", zap.Error(err))
		cancel()
		return func() {}
	}
	c.Start()
	p.logger.Info("reconciliation poller started", zap.Duration("interval", p.interval))

	return func() {
		cancel()
		<-c.Stop().Done()
		p.logger.Info("reconciliation poller stopped")
	}
}

// Tick runs one sweep over every created top-up, reading them in pages of batchSize.
// A failing invoice is logged and left for the next tick.
func (p *ReconciliationPoller) Tick(ctx context.Context) TickReport {
	var report TickReport
	start := time.Now()
	defer func() {
		pollerTickDuration.Observe(time.Since(start).Seconds())
		pollerTicksTotal.Inc()
		pollerPendingGauge.Set(float64(report.Checked))
	}()

	var afterID uint
	for {
		pending, err := p.topUpRepo.ListPending(ctx, afterID, p.batchSize)
		if err != nil {
			p.logger.Error("failed to list pending top-ups", zap.Uint("after_id", afterID), zap.Error(err))
			return report
		}

		for _, topUp := range pending {
			if ctx.Err() != nil {
				p.logger.Warn("reconciliation tick interrupted", zap.Int("checked", report.Checked), zap.Error(ctx.Err()))
				return report
			}
			afterID = topUp.ID
			p.sweepOne(ctx, topUp, &report)
		}

		if p.batchSize <= 0 || len(pending) < p.batchSize {
			break
		}
	}

	if report.Checked > 0 {
		p.logger.Debug("reconciliation tick finished",
			zap.Int("checked", report.Checked),
			zap.Int("credited", report.Credited),
			zap.Int("expired", report.Expired),
			zap.Int("pending", report.Pending),
			zap.Int("failed", report.Failed),
		)
	}
	return report
}

func (p *ReconciliationPoller) sweepOne(ctx context.Context, topUp *models.TopUp, report *TickReport) {
	report.Checked++

	outcome, err := p.reconcileOne(ctx, topUp)
	if err != nil {
		report.Failed++
		pollerInvoiceErrors.WithLabelValues(string(topUp.Provider)).Inc()
		p.logger.Warn("failed to reconcile top-up",
			zap.Uint("top_up_id", topUp.ID),
			zap.String("provider", string(topUp.Provider)),
			zap.String("order_id", topUp.OrderID),
			zap.Error(err),
		)
		return
	}

	switch outcome {
	case businessflow.ReconcileOutcomeCredited:
		report.Credited++
	case businessflow.ReconcileOutcomeExpired:
		report.Expired++
	case businessflow.ReconcileOutcomePending:
		report.Pending++
	default:
		report.Ignored++
	}
}

func (p *ReconciliationPoller) reconcileOne(ctx context.Context, topUp *models.TopUp) (outcome businessflow.ReconcileOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reconciling top-up %d: %v", topUp.ID, r)
		}
	}()

	adapter, ok := p.providers.Get(topUp.Provider)
	if !ok {
		return "", errProviderUnavailable
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.invoiceTimeout)
	invoice, err := adapter.GetInvoice(lookupCtx, topUp.OrderID)
	cancel()
	if err != nil {
		return "", err
	}

	observed := ObservedStatus(invoice, topUp.ExpiresAt, p.now())
	result, err := p.reconcile.ReconcileInvoice(ctx, topUp.ID, observed)
	if err != nil {
		return "", err
	}
	return result.Outcome, nil
}

var errProviderUnavailable = errors.New("provider is not configured")

// ObservedStatus is the provider status, except that a pending invoice past its
// expiry (provider-reported, else stored) counts as expired
func ObservedStatus(invoice *services.Invoice, storedExpiry *time.Time, now time.Time) services.InvoiceStatus {
	if invoice.Status != services.InvoiceStatusPending {
		return invoice.Status
	}
	expiresAt := invoice.ExpiresAt
	if expiresAt == nil {
		expiresAt = storedExpiry
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return services.InvoiceStatusExpired
	}
	return services.InvoiceStatusPending
}
