package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

const transactionColumns = `
	id, idempotency_key, wallet_id, user_id,
	amount_credits, commission_credits, commission_percent,
	transaction_type, payment_method_id, provider, provider_payment_intent_id,
	status, error_code, error_message, confirmation_key, metadata_json,
	notify_status, notify_attempts, notify_next_at, notify_last_error,
	created_at, updated_at, completed_at`

type TransactionFilter struct {
	UserID   string
	WalletID string
	Status   string
	Provider string
	Limit    int32
	Offset   int32
}

type TransactionRepository struct {
	db      DBTX
	dialect Dialect
}

func NewTransactionRepository(db DBTX, dialect Dialect) *TransactionRepository {
	return &TransactionRepository{db: db, dialect: dialect}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *entity.PaymentTransaction) error {
	metadataJSON, err := serializeMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		tx.ID,
		tx.IdempotencyKey,
		tx.WalletID,
		tx.UserID,
		tx.AmountCredits,
		tx.CommissionCredits,
		tx.CommissionPercent,
		tx.TransactionType,
		nullableStringValue(tx.PaymentMethodID),
		tx.Provider,
		nullableStringValue(tx.ProviderPaymentIntentID),
		tx.Status,
		nullableStringValue(tx.ErrorCode),
		nullableStringValue(tx.ErrorMessage),
		nullableStringValue(tx.ConfirmationKey),
		metadataJSON,
		tx.NotifyStatus,
		tx.NotifyAttempts,
		nullableTimeValue(tx.NotifyNextAt),
		nullableStringValue(tx.NotifyLastErr),
		tx.CreatedAt,
		tx.UpdatedAt,
		nullableTimeValue(tx.CompletedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}

	return nil
}

// UpdateNotification persists only the outbox delivery fields; status columns are owned by the ledger.
func (r *TransactionRepository) UpdateNotification(ctx context.Context, tx *entity.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions SET
			notify_status = ?,
			notify_attempts = ?,
			notify_next_at = ?,
			notify_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		tx.NotifyStatus,
		tx.NotifyAttempts,
		nullableTimeValue(tx.NotifyNextAt),
		nullableStringValue(tx.NotifyLastErr),
		tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE idempotency_key = ? LIMIT 1`
	return r.findOne(ctx, query, key)
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions`

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if strings.TrimSpace(filter.UserID) != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if strings.TrimSpace(filter.WalletID) != "" {
		conditions = append(conditions, "wallet_id = ?")
		args = append(args, filter.WalletID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.Provider) != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.findMany(ctx, query, args...)
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE status = ?
		  AND provider <> ?
		  AND provider_payment_intent_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, entity.TransactionStatusPending, entity.ProviderMock, cutoff, limit)
}

// TouchPending bumps updated_at on a still pending row so the expiry job waits a full timeout
// before asking the provider again.
func (r *TransactionRepository) TouchPending(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE payment_transactions SET updated_at = ? WHERE id = ? AND status = ?`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), at, id, entity.TransactionStatusPending)
	return err
}

func (r *TransactionRepository) ListDueNotifications(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE notify_status = ?
		  AND notify_next_at IS NOT NULL
		  AND notify_next_at <= ?
		ORDER BY notify_next_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, entity.NotifyPending, now, limit)
}

// CountCreatedSince backs the SQL rate-limit fallback.
func (r *TransactionRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), MIN(created_at)
		FROM payment_transactions
		WHERE user_id = ? AND created_at > ?
	`

	var count int
	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), userID, since).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, err
	}
	if !oldest.Valid {
		return count, time.Time{}, nil
	}
	return count, oldest.Time, nil
}

func (r *TransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.PaymentTransaction, error) {
	item := &entity.PaymentTransaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *TransactionRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.PaymentTransaction, 0)
	for rows.Next() {
		item := &entity.PaymentTransaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func scanTransaction(scan rowScanner, tx *entity.PaymentTransaction) error {
	var paymentMethodID sql.NullString
	var providerPaymentIntentID sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var confirmationKey sql.NullString
	var metadataJSON string
	var notifyNextAt sql.NullTime
	var notifyLastErr sql.NullString
	var completedAt sql.NullTime

	err := scan.Scan(
		&tx.ID,
		&tx.IdempotencyKey,
		&tx.WalletID,
		&tx.UserID,
		&tx.AmountCredits,
		&tx.CommissionCredits,
		&tx.CommissionPercent,
		&tx.TransactionType,
		&paymentMethodID,
		&tx.Provider,
		&providerPaymentIntentID,
		&tx.Status,
		&errorCode,
		&errorMessage,
		&confirmationKey,
		&metadataJSON,
		&tx.NotifyStatus,
		&tx.NotifyAttempts,
		&notifyNextAt,
		&notifyLastErr,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return err
	}

	tx.PaymentMethodID = stringPtrFromNull(paymentMethodID)
	tx.ProviderPaymentIntentID = stringPtrFromNull(providerPaymentIntentID)
	tx.ErrorCode = stringPtrFromNull(errorCode)
	tx.ErrorMessage = stringPtrFromNull(errorMessage)
	tx.ConfirmationKey = stringPtrFromNull(confirmationKey)
	tx.NotifyNextAt = timePtrFromNull(notifyNextAt)
	tx.NotifyLastErr = stringPtrFromNull(notifyLastErr)
	tx.CompletedAt = timePtrFromNull(completedAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	tx.Metadata = metadata

	return nil
}
