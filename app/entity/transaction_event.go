package entity

import "time"

const (
	TransactionEventCreated               = "transaction_created"
	TransactionEventCompleted             = "transaction_completed"
	TransactionEventFailed                = "transaction_failed"
	TransactionEventCancelRequested       = "provider_cancel_requested"
	TransactionEventNotificationPublished = "notification_published"
	TransactionEventNotificationFailed    = "notification_failed"
)

type TransactionEvent struct {
	ID uint64

	TransactionID string

	EventType string

	OldStatus *string
	NewStatus string

	ProviderEventID *string

	CreatedAt time.Time
}
