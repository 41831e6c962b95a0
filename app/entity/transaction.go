package entity

import "time"

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

const (
	TransactionTypeTopUp        = "topup"
	TransactionTypeOrderPayment = "order_payment"
	TransactionTypeRefund       = "refund"
)

const (
	ProviderStripe   = "stripe"
	ProviderYooKassa = "yookassa"
	ProviderMock     = "mock"
)

const (
	NotifyNone    int32 = 0
	NotifyPending int32 = 1
	NotifySuccess int32 = 10
	NotifyFailed  int32 = 20
)

const (
	MetadataClientSecret    = "client_secret"
	MetadataConfirmationURL = "confirmation_url"
)

type PaymentTransaction struct {
	ID             string
	IdempotencyKey string

	WalletID string
	UserID   string

	AmountCredits     int64
	CommissionCredits int64
	CommissionPercent string

	TransactionType string
	PaymentMethodID *string

	Provider                string
	ProviderPaymentIntentID *string

	Status       string
	ErrorCode    *string
	ErrorMessage *string

	// ConfirmationKey is the webhook event id that moved the row to a terminal state.
	ConfirmationKey *string

	Metadata map[string]string

	NotifyStatus   int32
	NotifyAttempts int32
	NotifyNextAt   *time.Time
	NotifyLastErr  *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (t *PaymentTransaction) AmountCredited() int64 {
	return t.AmountCredits - t.CommissionCredits
}

func (t *PaymentTransaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

func IsTerminalStatus(status string) bool {
	return status == TransactionStatusCompleted || status == TransactionStatusFailed
}
