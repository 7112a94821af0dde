package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	businessflow "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/business_flow"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

type WebhookHandlerInterface interface {
	Webhook(c fiber.Ctx) error
}

type WebhookHandler struct {
	flow businessflow.WebhookFlow
}

func NewWebhookHandler(flow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{flow: flow}
}

// Webhook receives provider payment notifications
// @Summary Payment Provider Webhook
// @Description Verifies the provider signature and reconciles the referenced invoice
// @Tags Payments
// @Accept json
// @Produce json
// @Param provider path string true "Provider (cryptobot|crystalpay)"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookAckResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 403 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/payments/webhooks/{provider} [post]
func (h *WebhookHandler) Webhook(c fiber.Ctx) error {
	provider := models.PaymentProvider(c.Params("provider"))
	endpoint := "/api/v1/payments/webhooks/" + string(provider)
	raw := append([]byte(nil), c.Body()...)

	ctx, cancel := requestCtx(c, endpoint, utils.WebhookRequestTimeout)
	defer cancel()

	var (
		resp *dto.WebhookAckResponse
		err  error
	)
	switch provider {
	case models.PaymentProviderCryptoBot:
		resp, err = h.flow.HandleCryptoBotWebhook(ctx, raw, c.Get(services.CryptoBotSignatureHeader), clientMetadata(c))
	case models.PaymentProviderCrystalPay:
		resp, err = h.flow.HandleCrystalPayCallback(ctx, raw, clientMetadata(c))
	default:
		return c.Status(fiber.StatusNotFound).JSON(dto.NewErrorResponse("Unsupported provider", "UNSUPPORTED_PROVIDER"))
	}
	if err != nil {
		return mapWebhookErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "OK", Data: resp})
}

func mapWebhookErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsInvalidWebhookSignature(err):
		return c.Status(fiber.StatusForbidden).JSON(dto.NewErrorResponse("Invalid signature", "INVALID_SIGNATURE"))
	case businessflow.IsInvalidWebhookPayload(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Invalid payload", "INVALID_PAYLOAD"))
	case businessflow.IsProviderNotConfigured(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.NewErrorResponse("Provider is not configured", "PROVIDER_NOT_CONFIGURED"))
	default:
		// Non-2xx makes the provider re-deliver; reconciliation is idempotent
		return c.Status(fiber.StatusInternalServerError).JSON(dto.NewErrorResponse("Webhook processing failed", "WEBHOOK_FAILED"))
	}
}
