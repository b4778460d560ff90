package payments

import (
	"errors"
	"fmt"
)

// ProcessorError represents a payment-processor-specific error
type ProcessorError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment error [%s]: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("payment error [%s]: %s", e.Code, e.Message)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// Common payment processor errors
var (
	ErrNotConfigured         = &ProcessorError{Code: "not_configured", Message: "payment processor is not configured"}
	ErrEventAlreadyProcessed = &ProcessorError{Code: "event_already_processed", Message: "webhook event already processed"}
	ErrAPICallFailed         = &ProcessorError{Code: "api_call_failed", Message: "payment processor API call failed"}
	ErrWebhookValidation     = &ProcessorError{Code: "webhook_validation", Message: "webhook signature validation failed"}
)

// WithErr returns a copy of the error carrying the underlying cause, leaving
// the sentinel untouched.
func (e *ProcessorError) WithErr(err error) *ProcessorError {
	return &ProcessorError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// IsSignatureError reports whether the error comes from a webhook payload
// whose signature could not be verified. Such requests must be rejected with
// a client error, never retried.
func IsSignatureError(err error) bool {
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr.Code == ErrWebhookValidation.Code
	}
	return false
}

// IsRetryableError reports whether a redelivery of the triggering request may
// succeed, which is the case when the processor API call itself failed.
func IsRetryableError(err error) bool {
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr.Code == ErrAPICallFailed.Code
	}
	return false
}
