package service

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
)

type ledgerRepository interface {
	Settle(ctx context.Context, s repository.Settlement) (*entity.PaymentTransaction, error)
}

// LedgerService applies terminal transitions. A second confirm or fail for a finalized
// transaction returns the stored row with applied=false and no error.
type LedgerService struct {
	ledger ledgerRepository
	now    func() time.Time
}

func NewLedgerService(ledger ledgerRepository) *LedgerService {
	return &LedgerService{ledger: ledger, now: time.Now}
}

// ConfirmPayment completes a pending transaction and credits the wallet. eventKey is the
// provider webhook event id, or mock:<transaction id> for synchronous settlements.
func (s *LedgerService) ConfirmPayment(ctx context.Context, transactionID, providerTransactionID, providerCode, eventKey string) (*entity.PaymentTransaction, bool, error) {
	return s.settle(ctx, repository.Settlement{
		TransactionID:     transactionID,
		Provider:          providerCode,
		ProviderPaymentID: providerTransactionID,
		Status:            entity.TransactionStatusCompleted,
		ConfirmationKey:   eventKey,
	})
}

func (s *LedgerService) FailPayment(ctx context.Context, transactionID, errorCode, errorMessage, providerCode, eventKey string) (*entity.PaymentTransaction, bool, error) {
	return s.settle(ctx, repository.Settlement{
		TransactionID:   transactionID,
		Provider:        providerCode,
		Status:          entity.TransactionStatusFailed,
		ErrorCode:       errorCode,
		ErrorMessage:    truncate(errorMessage, 1024),
		ConfirmationKey: eventKey,
	})
}

func (s *LedgerService) settle(ctx context.Context, settlement repository.Settlement) (*entity.PaymentTransaction, bool, error) {
	if settlement.Provider != entity.ProviderMock {
		settlement.WebhookProvider = settlement.Provider
		settlement.WebhookEventID = settlement.ConfirmationKey
	}
	settlement.At = s.now().UTC()

	item, err := s.ledger.Settle(ctx, settlement)
	switch {
	case err == nil:
		return item, true, nil
	case errors.Is(err, repository.ErrTransactionFinalized):
		return item, false, nil
	case errors.Is(err, repository.ErrTransactionNotFound):
		return nil, false, ErrTransactionNotFound
	case errors.Is(err, repository.ErrProviderMismatch), errors.Is(err, repository.ErrProviderReferenceMismatch):
		return nil, false, ErrWebhookCorrelation
	default:
		return nil, false, err
	}
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
