package businessflow

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
)

// CryptoBotVerifier checks the crypto-pay-api-signature header
type CryptoBotVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// CrystalPayVerifier checks the callback signature field
type CrystalPayVerifier interface {
	VerifyCallbackSignature(invoiceID, signature string) bool
}

// Webhook outcomes that never reach ReconcileInvoice
const (
	WebhookOutcomeUnknownInvoice = "unknown_invoice"
	WebhookOutcomeSkipped        = "skipped"
)

const cryptoBotUpdateInvoicePaid = "invoice_paid"

// WebhookFlow is the push-path entry point. It funnels into ReconcileInvoice like the poller.
type WebhookFlow interface {
	HandleCryptoBotWebhook(ctx context.Context, raw []byte, signature string, metadata *ClientMetadata) (*dto.WebhookAckResponse, error)
	HandleCrystalPayCallback(ctx context.Context, raw []byte, metadata *ClientMetadata) (*dto.WebhookAckResponse, error)
}

// WebhookFlowImpl implements WebhookFlow
type WebhookFlowImpl struct {
	topUpRepo  repository.TopUpRepository
	auditRepo  repository.AuditLogRepository
	reconcile  ReconcileFlow
	cryptoBot  CryptoBotVerifier
	crystalPay CrystalPayVerifier
	providers  services.ProviderRegistry
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewWebhookFlow(
	topUpRepo repository.TopUpRepository,
	auditRepo repository.AuditLogRepository,
	reconcile ReconcileFlow,
	cryptoBot CryptoBotVerifier,
	crystalPay CrystalPayVerifier,
	providers services.ProviderRegistry,
	logger *zap.Logger,
) WebhookFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookFlowImpl{
		topUpRepo:  topUpRepo,
		auditRepo:  auditRepo,
		reconcile:  reconcile,
		cryptoBot:  cryptoBot,
		crystalPay: crystalPay,
		providers:  providers,
		validator:  validator.New(),
		logger:     logger,
	}
}

// HandleCryptoBotWebhook verifies and applies an invoice_paid update
func (f *WebhookFlowImpl) HandleCryptoBotWebhook(ctx context.Context, raw []byte, signature string, metadata *ClientMetadata) (*dto.WebhookAckResponse, error) {
	provider := models.PaymentProviderCryptoBot
	if f.cryptoBot == nil {
		webhookTotal.WithLabelValues(string(provider), "not_configured").Inc()
		return nil, ErrProviderNotConfigured
	}
	if len(raw) == 0 || signature == "" || !f.cryptoBot.VerifyWebhookSignature(raw, signature) {
		f.reject(ctx, provider, "invalid signature", metadata)
		return nil, ErrInvalidWebhookSignature
	}

	var update dto.CryptoBotWebhookUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		webhookTotal.WithLabelValues(string(provider), "malformed").Inc()
		return nil, NewBusinessError("WEBHOOK_INVALID", "invalid json", ErrInvalidWebhookPayload)
	}
	if err := f.validator.Struct(&update); err != nil {
		webhookTotal.WithLabelValues(string(provider), "malformed").Inc()
		return nil, NewBusinessError("WEBHOOK_INVALID", "validation failed", ErrInvalidWebhookPayload)
	}
	if update.UpdateType != cryptoBotUpdateInvoicePaid {
		webhookTotal.WithLabelValues(string(provider), WebhookOutcomeSkipped).Inc()
		return &dto.WebhookAckResponse{Outcome: WebhookOutcomeSkipped}, nil
	}

	observed := services.MapCryptoBotStatus(update.Payload.Status)
	orderID := strconv.FormatInt(update.Payload.InvoiceID, 10)
	return f.apply(ctx, provider, orderID, observed)
}

// HandleCrystalPayCallback verifies and applies a CrystalPay callback
func (f *WebhookFlowImpl) HandleCrystalPayCallback(ctx context.Context, raw []byte, metadata *ClientMetadata) (*dto.WebhookAckResponse, error) {
	provider := models.PaymentProviderCrystalPay
	if f.crystalPay == nil {
		webhookTotal.WithLabelValues(string(provider), "not_configured").Inc()
		return nil, ErrProviderNotConfigured
	}

	var callback dto.CrystalPayCallback
	if err := json.Unmarshal(raw, &callback); err != nil {
		webhookTotal.WithLabelValues(string(provider), "malformed").Inc()
		return nil, NewBusinessError("WEBHOOK_INVALID", "invalid json", ErrInvalidWebhookPayload)
	}
	if err := f.validator.Struct(&callback); err != nil {
		webhookTotal.WithLabelValues(string(provider), "malformed").Inc()
		return nil, NewBusinessError("WEBHOOK_INVALID", "validation failed", ErrInvalidWebhookPayload)
	}
	if !f.crystalPay.VerifyCallbackSignature(callback.ID, callback.Signature) {
		f.reject(ctx, provider, "invalid signature for "+callback.ID, metadata)
		return nil, ErrInvalidWebhookSignature
	}

	observed := services.MapCrystalPayState(callback.State)

	// The signature covers only the invoice id, so a paid state is confirmed with the provider
	if observed == services.InvoiceStatusPaid {
		if adapter, ok := f.providers.Get(provider); ok {
			confirmed, err := adapter.CheckStatus(ctx, callback.ID)
			if err != nil {
				webhookTotal.WithLabelValues(string(provider), "provider_error").Inc()
				return nil, err
			}
			observed = confirmed
		}
	}

	return f.apply(ctx, provider, callback.ID, observed)
}

func (f *WebhookFlowImpl) apply(ctx context.Context, provider models.PaymentProvider, orderID string, observed services.InvoiceStatus) (*dto.WebhookAckResponse, error) {
	topUp, err := f.topUpRepo.ByOrderID(ctx, provider, orderID)
	if err != nil {
		webhookTotal.WithLabelValues(string(provider), "error").Inc()
		return nil, NewBusinessError("WEBHOOK_FAILED", "failed to load top-up", err)
	}
	if topUp == nil {
		f.logger.Warn("webhook for unknown invoice",
			zap.String("provider", string(provider)),
			zap.String("order_id", orderID),
		)
		webhookTotal.WithLabelValues(string(provider), WebhookOutcomeUnknownInvoice).Inc()
		return &dto.WebhookAckResponse{Outcome: WebhookOutcomeUnknownInvoice}, nil
	}
	if topUp.Status.IsTerminal() {
		webhookTotal.WithLabelValues(string(provider), string(ReconcileOutcomeIgnored)).Inc()
		return &dto.WebhookAckResponse{Outcome: string(ReconcileOutcomeIgnored)}, nil
	}

	result, err := f.reconcile.ReconcileInvoice(ctx, topUp.ID, observed)
	if err != nil {
		f.logger.Error("webhook reconcile failed",
			zap.String("provider", string(provider)),
			zap.Uint("top_up_id", topUp.ID),
			zap.String("observed", string(observed)),
			zap.Error(err),
		)
		webhookTotal.WithLabelValues(string(provider), "error").Inc()
		return nil, NewBusinessError("WEBHOOK_FAILED", "failed to reconcile top-up", err)
	}

	webhookTotal.WithLabelValues(string(provider), string(result.Outcome)).Inc()
	f.logger.Info("webhook applied",
		zap.String("provider", string(provider)),
		zap.Uint("top_up_id", topUp.ID),
		zap.String("observed", string(observed)),
		zap.String("outcome", string(result.Outcome)),
	)
	return &dto.WebhookAckResponse{Outcome: string(result.Outcome)}, nil
}

func (f *WebhookFlowImpl) reject(ctx context.Context, provider models.PaymentProvider, reason string, metadata *ClientMetadata) {
	webhookTotal.WithLabelValues(string(provider), "forbidden").Inc()
	f.logger.Warn("webhook rejected", zap.String("provider", string(provider)), zap.String("reason", reason))
	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		Action:      models.AuditActionWebhookRejected,
		Description: strings.TrimSpace(string(provider) + " webhook rejected: " + reason),
		Success:     false,
	}, metadata)
}
