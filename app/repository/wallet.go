package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

var ErrWalletNotFound = errors.New("wallet not found")

// WalletRepository is the adapter to the wallet service tables. Balances are only changed
// through CreditWallet, called inside a ledger transaction.
type WalletRepository struct {
	db      DBTX
	dialect Dialect
}

func NewWalletRepository(db DBTX, dialect Dialect) *WalletRepository {
	return &WalletRepository{db: db, dialect: dialect}
}

func (r *WalletRepository) FindByID(ctx context.Context, id string) (*entity.Wallet, error) {
	query := `
		SELECT id, user_id, balance_credits, lifetime_top_up_credits, updated_at
		FROM wallets
		WHERE id = ?
	`

	wallet := &entity.Wallet{}
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.BalanceCredits,
		&wallet.LifetimeTopUpCredits,
		&wallet.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *WalletRepository) CreditWallet(ctx context.Context, q DBTX, walletID string, amountCredits int64, topUp bool) error {
	lifetime := int64(0)
	if topUp {
		lifetime = amountCredits
	}

	query := `
		UPDATE wallets SET
			balance_credits = balance_credits + ?,
			lifetime_top_up_credits = lifetime_top_up_credits + ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, r.dialect.Rebind(query), amountCredits, lifetime, time.Now().UTC(), walletID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWalletNotFound
	}
	return nil
}
