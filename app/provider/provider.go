package provider

import (
	"context"
	"errors"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeUnhandled = "unhandled"
)

// Metadata keys attached to every provider-side payment for webhook correlation.
const (
	MetadataTransactionID = "transaction_id"
	MetadataWalletID      = "wallet_id"
	MetadataUserID        = "user_id"
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
	ErrWebhookNotSupported = errors.New("provider does not receive webhooks")
	ErrNotConfigured       = errors.New("provider is not configured")
)

type CreateInput struct {
	TransactionID   string
	WalletID        string
	UserID          string
	AmountCredits   int64
	PaymentMethodID string

	// IdempotencyKey is forwarded to the provider's own de-duplication.
	IdempotencyKey string
}

type CreateOutput struct {
	ProviderPaymentID string
	ClientSecret      *string
	ConfirmationURL   *string

	// Completed is set by providers that settle synchronously.
	Completed bool
}

// WebhookEvent is a verified provider notification normalized to one outcome.
type WebhookEvent struct {
	EventID           string
	EventType         string
	Outcome           string
	TransactionID     string
	ProviderPaymentID string
	FailureCode       string
	FailureMessage    string
}

type Provider interface {
	Code() string
	CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error)
	CancelPayment(ctx context.Context, providerPaymentID, idempotencyKey string) error
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

func correlationMetadata(input *CreateInput) map[string]string {
	return map[string]string{
		MetadataTransactionID: input.TransactionID,
		MetadataWalletID:      input.WalletID,
		MetadataUserID:        input.UserID,
	}
}
