package entity

import "time"

type WebhookEvent struct {
	ID uint64

	Provider  string
	EventID   string
	EventType string

	TransactionID *string

	// PayloadJSON holds the sanitized provider payload.
	PayloadJSON string

	Processed       bool
	ProcessingError *string

	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
