package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

var (
	ErrWebhookEventAlreadyExists = errors.New("webhook event already exists")
	ErrWebhookEventNotFound      = errors.New("webhook event not found")
)

type WebhookEventRepository struct {
	db      DBTX
	dialect Dialect
}

func NewWebhookEventRepository(db DBTX, dialect Dialect) *WebhookEventRepository {
	return &WebhookEventRepository{db: db, dialect: dialect}
}

// Create relies on the (provider, event_id) unique key; losing a race returns ErrWebhookEventAlreadyExists.
func (r *WebhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			provider, event_id, event_type, transaction_id, payload_json,
			processed, processing_error, received_at, processed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		event.Provider,
		event.EventID,
		event.EventType,
		nullableStringValue(event.TransactionID),
		event.PayloadJSON,
		event.Processed,
		nullableStringValue(event.ProcessingError),
		event.ReceivedAt,
		nullableTimeValue(event.ProcessedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrWebhookEventAlreadyExists
		}
		return err
	}

	return nil
}

func (r *WebhookEventRepository) FindByProviderEventID(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, provider, event_id, event_type, transaction_id, payload_json,
			processed, processing_error, received_at, processed_at
		FROM webhook_events
		WHERE provider = ? AND event_id = ?
		LIMIT 1
	`

	var transactionID sql.NullString
	var processingError sql.NullString
	var processedAt sql.NullTime
	event := &entity.WebhookEvent{}

	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), provider, eventID).Scan(
		&event.ID,
		&event.Provider,
		&event.EventID,
		&event.EventType,
		&transactionID,
		&event.PayloadJSON,
		&event.Processed,
		&processingError,
		&event.ReceivedAt,
		&processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.TransactionID = stringPtrFromNull(transactionID)
	event.ProcessingError = stringPtrFromNull(processingError)
	event.ProcessedAt = timePtrFromNull(processedAt)

	return event, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID string, processedAt time.Time) error {
	query := `
		UPDATE webhook_events SET
			processed = ?,
			processing_error = NULL,
			processed_at = ?
		WHERE provider = ? AND event_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), true, processedAt, provider, eventID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, provider, eventID, processingError string) error {
	query := `
		UPDATE webhook_events SET
			processed = ?,
			processing_error = ?
		WHERE provider = ? AND event_id = ? AND processed = ?
	`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), false, processingError, provider, eventID, false)
	return err
}
