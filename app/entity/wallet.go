package entity

import "time"

// Wallet is owned by the wallet service; payments only read it and request credits.
type Wallet struct {
	ID     string
	UserID string

	BalanceCredits       int64
	LifetimeTopUpCredits int64

	UpdatedAt time.Time
}
