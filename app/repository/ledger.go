package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

var (
	ErrTransactionFinalized      = errors.New("transaction already finalized")
	ErrProviderMismatch          = errors.New("transaction belongs to another provider")
	ErrProviderReferenceMismatch = errors.New("provider payment reference does not match transaction")
	ErrInvalidSettlementStatus   = errors.New("settlement status must be terminal")
)

// Settlement moves one pending transaction to a terminal status.
type Settlement struct {
	TransactionID     string
	Provider          string
	ProviderPaymentID string
	Status            string
	ErrorCode         string
	ErrorMessage      string

	// ConfirmationKey identifies what triggered the transition: a webhook event id or mock:<txid>.
	ConfirmationKey string

	// WebhookProvider and WebhookEventID reference the webhook_events row to mark processed
	// in the same database transaction. Both are empty for mock confirmations.
	WebhookProvider string
	WebhookEventID  string

	At time.Time
}

type walletCreditor interface {
	CreditWallet(ctx context.Context, q DBTX, walletID string, amountCredits int64, topUp bool) error
}

// LedgerRepository owns every status transition of payment_transactions. The row lock,
// wallet credit, outbox flag, audit event and webhook bookkeeping commit together.
type LedgerRepository struct {
	db      TxBeginner
	dialect Dialect
	wallets walletCreditor
}

func NewLedgerRepository(db TxBeginner, dialect Dialect, wallets walletCreditor) *LedgerRepository {
	return &LedgerRepository{db: db, dialect: dialect, wallets: wallets}
}

// Settle returns the row as stored after the call. When the row was already terminal the
// stored row is returned together with ErrTransactionFinalized and nothing but the webhook
// event is touched.
func (r *LedgerRepository) Settle(ctx context.Context, s Settlement) (*entity.PaymentTransaction, error) {
	if !entity.IsTerminalStatus(s.Status) {
		return nil, ErrInvalidSettlementStatus
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	item, err := r.lockTransaction(ctx, tx, s.TransactionID)
	if err != nil {
		return nil, err
	}

	if item.Provider != s.Provider {
		return nil, ErrProviderMismatch
	}
	if s.ProviderPaymentID != "" && item.ProviderPaymentIntentID != nil && *item.ProviderPaymentIntentID != s.ProviderPaymentID {
		return nil, ErrProviderReferenceMismatch
	}

	webhooks := NewWebhookEventRepository(tx, r.dialect)

	if item.IsTerminal() {
		if s.WebhookEventID != "" {
			if err := webhooks.MarkProcessed(ctx, s.WebhookProvider, s.WebhookEventID, s.At); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return item, ErrTransactionFinalized
	}

	oldStatus := item.Status
	item.Status = s.Status
	item.UpdatedAt = s.At
	item.CompletedAt = &s.At
	item.ConfirmationKey = optionalString(s.ConfirmationKey)
	item.ErrorCode = nil
	item.ErrorMessage = nil
	if s.Status == entity.TransactionStatusFailed {
		item.ErrorCode = optionalString(s.ErrorCode)
		item.ErrorMessage = optionalString(s.ErrorMessage)
	}
	item.NotifyStatus = entity.NotifyPending
	item.NotifyAttempts = 0
	item.NotifyNextAt = &s.At
	item.NotifyLastErr = nil

	if err := r.updateStatus(ctx, tx, item); err != nil {
		return nil, err
	}

	if s.Status == entity.TransactionStatusCompleted {
		topUp := item.TransactionType == entity.TransactionTypeTopUp
		if err := r.wallets.CreditWallet(ctx, tx, item.WalletID, item.AmountCredited(), topUp); err != nil {
			return nil, err
		}
	}

	eventType := entity.TransactionEventCompleted
	if s.Status == entity.TransactionStatusFailed {
		eventType = entity.TransactionEventFailed
	}
	audit := &entity.TransactionEvent{
		TransactionID:   item.ID,
		EventType:       eventType,
		OldStatus:       &oldStatus,
		NewStatus:       item.Status,
		ProviderEventID: optionalString(s.WebhookEventID),
		CreatedAt:       s.At,
	}
	if err := NewTransactionEventRepository(tx, r.dialect).Create(ctx, audit); err != nil {
		return nil, err
	}

	if s.WebhookEventID != "" {
		if err := webhooks.MarkProcessed(ctx, s.WebhookProvider, s.WebhookEventID, s.At); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return item, nil
}

func (r *LedgerRepository) lockTransaction(ctx context.Context, tx *sql.Tx, id string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = ? FOR UPDATE`

	item := &entity.PaymentTransaction{}
	err := scanTransaction(tx.QueryRowContext(ctx, r.dialect.Rebind(query), id), item)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// updateStatus is guarded by status = pending so a terminal row can never move again.
func (r *LedgerRepository) updateStatus(ctx context.Context, tx *sql.Tx, item *entity.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions SET
			status = ?,
			error_code = ?,
			error_message = ?,
			confirmation_key = ?,
			notify_status = ?,
			notify_attempts = ?,
			notify_next_at = ?,
			notify_last_error = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := tx.ExecContext(ctx, r.dialect.Rebind(query),
		item.Status,
		nullableStringValue(item.ErrorCode),
		nullableStringValue(item.ErrorMessage),
		nullableStringValue(item.ConfirmationKey),
		item.NotifyStatus,
		item.NotifyAttempts,
		nullableTimeValue(item.NotifyNextAt),
		nullableStringValue(item.NotifyLastErr),
		item.UpdatedAt,
		nullableTimeValue(item.CompletedAt),
		item.ID,
		entity.TransactionStatusPending,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionFinalized
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
