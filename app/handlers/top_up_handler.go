package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	businessflow "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/business_flow"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

type TopUpHandlerInterface interface {
	CreateTopUp(c fiber.Ctx) error
	GetTopUpStatus(c fiber.Ctx) error
}

type TopUpHandler struct {
	flow      businessflow.TopUpFlow
	validator *validator.Validate
}

func NewTopUpHandler(flow businessflow.TopUpFlow) *TopUpHandler {
	return &TopUpHandler{flow: flow, validator: validator.New()}
}

// CreateTopUp issues a provider invoice for a balance top-up
// @Summary Create Top-Up
// @Tags TopUps
// @Accept json
// @Produce json
// @Param request body dto.CreateTopUpRequest true "Top-up payload"
// @Success 201 {object} dto.APIResponse{data=dto.CreateTopUpResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 502 {object} dto.APIResponse
// @Router /api/v1/top-ups [post]
func (h *TopUpHandler) CreateTopUp(c fiber.Ctx) error {
	var req dto.CreateTopUpRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Invalid request body", "INVALID_REQUEST"))
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationErrorResponse(c, err)
	}

	ctx, cancel := requestCtx(c, "/api/v1/top-ups", utils.APIRequestTimeout)
	defer cancel()

	resp, err := h.flow.CreateTopUp(ctx, &req, clientMetadata(c))
	if err != nil {
		return mapTopUpErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{Success: true, Message: "Top-up created", Data: resp})
}

// GetTopUpStatus returns the ledger state of one top-up
// @Summary Get Top-Up Status
// @Tags TopUps
// @Produce json
// @Param uuid path string true "Top-up UUID"
// @Success 200 {object} dto.APIResponse{data=dto.TopUpStatusResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/top-ups/{uuid} [get]
func (h *TopUpHandler) GetTopUpStatus(c fiber.Ctx) error {
	req := dto.GetTopUpStatusRequest{UUID: c.Params("uuid")}
	if err := h.validator.Struct(&req); err != nil {
		return validationErrorResponse(c, err)
	}

	ctx, cancel := requestCtx(c, "/api/v1/top-ups/"+req.UUID, utils.APIRequestTimeout)
	defer cancel()

	resp, err := h.flow.GetTopUpStatus(ctx, &req)
	if err != nil {
		return mapTopUpErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Top-up status", Data: resp})
}

func mapTopUpErr(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsInvalidAmount(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Invalid amount", "INVALID_AMOUNT"))
	case businessflow.IsAmountTooLow(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Amount too low", "AMOUNT_TOO_LOW"))
	case businessflow.IsAmountTooHigh(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Amount too high", "AMOUNT_TOO_HIGH"))
	case businessflow.IsUnsupportedProvider(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Unsupported provider", "UNSUPPORTED_PROVIDER"))
	case businessflow.IsProviderNotConfigured(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.NewErrorResponse("Provider is not available", "PROVIDER_NOT_CONFIGURED"))
	case businessflow.IsInvalidTopUpIdentifier(err):
		return c.Status(fiber.StatusBadRequest).JSON(dto.NewErrorResponse("Invalid top-up identifier", "INVALID_TOP_UP_ID"))
	case businessflow.IsUserNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.NewErrorResponse("User not found", "USER_NOT_FOUND"))
	case businessflow.IsTopUpNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(dto.NewErrorResponse("Top-up not found", "TOP_UP_NOT_FOUND"))
	case businessflow.IsInvoiceCreationFailed(err):
		return c.Status(fiber.StatusBadGateway).JSON(dto.NewErrorResponse("Payment provider is unavailable", "INVOICE_CREATION_FAILED"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.NewErrorResponse("Top-up operation failed", "TOP_UP_OPERATION_FAILED"))
	}
}
