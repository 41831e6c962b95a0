package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
	ErrIdempotencyKeyConflict = errors.New("idempotency key belongs to another user")
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrProviderUnsupported    = errors.New("provider is not supported")

	ErrWebhookSignatureInvalid = errors.New("invalid webhook signature")
	ErrInvalidWebhookPayload   = errors.New("invalid webhook payload")
	ErrMissingTransactionID    = errors.New("webhook is missing transaction_id metadata")
	ErrWebhookCorrelation      = errors.New("webhook does not match transaction")
	ErrWebhookProcessing       = errors.New("webhook processing failed")
)

// RateLimitError carries the moment the caller may retry.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited.Error(), e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
