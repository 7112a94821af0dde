// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
	businessflow "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/business_flow"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must be a number"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

func validationErrorResponse(c fiber.Ctx, err error) error {
	var details []string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details = append(details, getValidationErrorMessage(fe))
		}
	} else {
		details = append(details, err.Error())
	}
	return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
		Success: false,
		Message: "Validation failed",
		Error: dto.ErrorDetail{
			Code:    "VALIDATION_ERROR",
			Details: strings.Join(details, "; "),
		},
	})
}

// requestCtx detaches the flow from the fasthttp request lifetime, bounds it by timeout
// and carries endpoint and request id. Callers must call cancel.
func requestCtx(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.WithValue(context.Background(), utils.EndpointKey, endpoint)
	if rid := c.GetRespHeader(businessflow.RequestIDKey); rid != "" {
		ctx = context.WithValue(ctx, utils.RequestIDKey, rid)
	}
	return context.WithTimeout(ctx, timeout)
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if rid := c.GetRespHeader(businessflow.RequestIDKey); rid != "" {
		meta.SetRequestID(rid)
	}
	return meta
}
