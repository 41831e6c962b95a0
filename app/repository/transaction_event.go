package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

type TransactionEventRepository struct {
	db      DBTX
	dialect Dialect
}

func NewTransactionEventRepository(db DBTX, dialect Dialect) *TransactionEventRepository {
	return &TransactionEventRepository{db: db, dialect: dialect}
}

func (r *TransactionEventRepository) Create(ctx context.Context, event *entity.TransactionEvent) error {
	query := `
		INSERT INTO transaction_events (
			transaction_id, event_type, old_status, new_status, provider_event_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		event.TransactionID,
		event.EventType,
		nullableStringValue(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.ProviderEventID),
		event.CreatedAt,
	)
	return err
}
