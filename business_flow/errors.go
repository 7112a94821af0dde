// Package businessflow contains the core business logic for top-ups, reconciliation and rewards
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Lookup errors
	ErrTopUpNotFound    = errors.New("top-up not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrReferrerNotFound = errors.New("referrer not found")

	// Top-up creation errors
	ErrAmountTooLow           = errors.New("amount is too low")
	ErrAmountTooHigh          = errors.New("amount is too high")
	ErrInvalidAmount          = errors.New("amount is not a valid number")
	ErrUnsupportedProvider    = errors.New("payment provider is not supported")
	ErrProviderNotConfigured  = errors.New("payment provider is not configured")
	ErrInvoiceCreationFailed  = errors.New("failed to create provider invoice")
	ErrInvalidTopUpIdentifier = errors.New("invalid top-up identifier")

	// Webhook errors
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	ErrInvalidWebhookPayload   = errors.New("invalid webhook payload")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsTopUpNotFound(err error) bool {
	return errors.Is(err, ErrTopUpNotFound)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsAmountTooLow(err error) bool {
	return errors.Is(err, ErrAmountTooLow)
}

func IsAmountTooHigh(err error) bool {
	return errors.Is(err, ErrAmountTooHigh)
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

func IsUnsupportedProvider(err error) bool {
	return errors.Is(err, ErrUnsupportedProvider)
}

func IsProviderNotConfigured(err error) bool {
	return errors.Is(err, ErrProviderNotConfigured)
}

func IsInvoiceCreationFailed(err error) bool {
	return errors.Is(err, ErrInvoiceCreationFailed)
}

func IsInvalidTopUpIdentifier(err error) bool {
	return errors.Is(err, ErrInvalidTopUpIdentifier)
}

func IsInvalidWebhookSignature(err error) bool {
	return errors.Is(err, ErrInvalidWebhookSignature)
}

func IsInvalidWebhookPayload(err error) bool {
	return errors.Is(err, ErrInvalidWebhookPayload)
}
