package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// TopUpFlow handles top-up creation and status lookups
type TopUpFlow interface {
	CreateTopUp(ctx context.Context, req *dto.CreateTopUpRequest, metadata *ClientMetadata) (*dto.CreateTopUpResponse, error)
	GetTopUpStatus(ctx context.Context, req *dto.GetTopUpStatusRequest) (*dto.TopUpStatusResponse, error)
}

// TopUpFlowImpl implements TopUpFlow
type TopUpFlowImpl struct {
	topUpRepo repository.TopUpRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditLogRepository
	providers services.ProviderRegistry
	cfg       config.TopUpConfig
	logger    *zap.Logger
}

func NewTopUpFlow(
	topUpRepo repository.TopUpRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	providers services.ProviderRegistry,
	cfg config.TopUpConfig,
	logger *zap.Logger,
) TopUpFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopUpFlowImpl{
		topUpRepo: topUpRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateTopUp issues a provider invoice and records it in the ledger as created
func (f *TopUpFlowImpl) CreateTopUp(ctx context.Context, req *dto.CreateTopUpRequest, metadata *ClientMetadata) (*dto.CreateTopUpResponse, error) {
	amount, provider, err := f.validateCreateRequest(req)
	if err != nil {
		return nil, err
	}

	user, err := f.userRepo.ByID(ctx, req.UserID)
	if err != nil {
		return nil, NewBusinessError("TOP_UP_CREATE_FAILED", "Failed to load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	adapter, ok := f.providers.Get(provider)
	if !ok {
		return nil, ErrProviderNotConfigured
	}

	topUpUUID := uuid.New()
	correlationID := uuid.New()

	invoice, err := adapter.CreateInvoice(ctx, services.CreateInvoiceInput{
		Amount:  amount,
		OrderID: topUpUUID.String(),
		Metadata: map[string]string{
			"user_id":        fmt.Sprintf("%d", user.ID),
			"correlation_id": correlationID.String(),
		},
	})
	if err != nil {
		f.logger.Error("provider invoice creation failed",
			zap.String("provider", string(provider)),
			zap.Uint("user_id", user.ID),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		_ = createAuditLog(ctx, f.auditRepo, auditEntry{
			UserID:      &user.ID,
			Action:      models.AuditActionTopUpCreateFailed,
			Description: fmt.Sprintf("Invoice creation failed at %s for %s USD", provider, amount.String()),
			Success:     false,
			ErrorMsg:    utils.ToPtr(err.Error()),
		}, metadata)
		return nil, NewBusinessErrorf("INVOICE_CREATION_FAILED", "Failed to create %s invoice", fmt.Errorf("%w: %v", ErrInvoiceCreationFailed, err), provider)
	}

	topUp := &models.TopUp{
		UUID:          topUpUUID,
		CorrelationID: correlationID,
		UserID:        user.ID,
		Provider:      provider,
		OrderID:       invoice.ID,
		Amount:        amount,
		PayURL:        invoice.URL,
		Status:        models.TopUpStatusCreated,
		ExpiresAt:     utils.TimeToUTCPtr(invoice.ExpiresAt),
	}
	if err := f.topUpRepo.Save(ctx, topUp); err != nil {
		return nil, NewBusinessError("TOP_UP_CREATE_FAILED", "Failed to save top-up", err)
	}

	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		UserID:      &user.ID,
		TopUpID:     &topUp.ID,
		Action:      models.AuditActionTopUpCreated,
		Description: fmt.Sprintf("Top-up of %s USD created at %s", amount.String(), provider),
		Success:     true,
		Extra: map[string]any{
			"order_id":       invoice.ID,
			"correlation_id": correlationID.String(),
		},
	}, metadata)

	f.logger.Info("top-up created",
		zap.Uint("top_up_id", topUp.ID),
		zap.Uint("user_id", user.ID),
		zap.String("provider", string(provider)),
		zap.String("order_id", invoice.ID),
		zap.String("amount", amount.String()),
	)

	return &dto.CreateTopUpResponse{
		UUID:      topUp.UUID.String(),
		OrderID:   topUp.OrderID,
		Provider:  string(topUp.Provider),
		Amount:    topUp.Amount.String(),
		PayURL:    topUp.PayURL,
		Status:    string(topUp.Status),
		ExpiresAt: formatTimePtr(topUp.ExpiresAt),
		CreatedAt: topUp.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (f *TopUpFlowImpl) validateCreateRequest(req *dto.CreateTopUpRequest) (decimal.Decimal, models.PaymentProvider, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, "", ErrInvalidAmount
	}
	if f.cfg.MinAmount.IsPositive() && amount.LessThan(f.cfg.MinAmount) {
		return decimal.Zero, "", ErrAmountTooLow
	}
	if f.cfg.MaxAmount.IsPositive() && amount.GreaterThan(f.cfg.MaxAmount) {
		return decimal.Zero, "", ErrAmountTooHigh
	}

	provider := models.PaymentProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
	if !provider.IsValid() {
		return decimal.Zero, "", ErrUnsupportedProvider
	}
	return amount, provider, nil
}

// GetTopUpStatus returns the ledger view of one top-up
func (f *TopUpFlowImpl) GetTopUpStatus(ctx context.Context, req *dto.GetTopUpStatusRequest) (*dto.TopUpStatusResponse, error) {
	id, err := uuid.Parse(req.UUID)
	if err != nil {
		return nil, ErrInvalidTopUpIdentifier
	}

	topUp, err := f.topUpRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("TOP_UP_LOOKUP_FAILED", "Failed to load top-up", err)
	}
	if topUp == nil {
		return nil, ErrTopUpNotFound
	}

	resp := ToTopUpStatusDTO(*topUp)
	return &resp, nil
}
