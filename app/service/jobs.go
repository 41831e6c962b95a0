package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/event"
)

// RunExpirePendingBatch asks providers to cancel intents that stayed pending past the timeout.
// Rows are left pending; the provider's cancellation webhook moves them to failed.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now().UTC()
	timeout := s.paymentsCfg.PendingTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}

	items, err := s.repos.Transactions.ListStalePending(ctx, now.Add(-timeout), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil || tx.ProviderPaymentIntentID == nil || *tx.ProviderPaymentIntentID == "" {
			continue
		}
		logger := s.logger.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"provider":       tx.Provider,
		})

		providerClient, err := s.providerReg.Get(tx.Provider)
		if err != nil {
			logger.WithError(err).Warn("Provider for stale transaction is not configured")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if err := providerClient.CancelPayment(ctx, *tx.ProviderPaymentIntentID, tx.IdempotencyKey); err != nil {
			logger.WithError(err).Warn("Provider cancel for stale transaction failed")
			firstErr = keepFirstErr(firstErr, err)
		}

		if err := s.repos.Transactions.TouchPending(ctx, tx.ID, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		pending := entity.TransactionStatusPending
		_ = s.repos.TransactionEvents.Create(ctx, &entity.TransactionEvent{
			TransactionID: tx.ID,
			EventType:     entity.TransactionEventCancelRequested,
			OldStatus:     &pending,
			NewStatus:     tx.Status,
			CreatedAt:     now,
		})
	}

	return firstErr
}

// RunDispatchNotificationsBatch publishes queued terminal transitions with bounded retries.
func (s *PaymentService) RunDispatchNotificationsBatch(ctx context.Context) error {
	now := s.now().UTC()
	items, err := s.repos.Transactions.ListDueNotifications(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, tx, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) dispatchNotification(ctx context.Context, tx *entity.PaymentTransaction, now time.Time) error {
	publishErr := s.publisher.PublishTransaction(ctx, event.NewTransactionEvent(tx, now))
	if publishErr != nil {
		return s.recordDispatchFailure(ctx, tx, now, publishErr)
	}

	tx.NotifyStatus = entity.NotifySuccess
	tx.NotifyNextAt = nil
	tx.NotifyLastErr = nil
	tx.UpdatedAt = now
	if err := s.repos.Transactions.UpdateNotification(ctx, tx); err != nil {
		return err
	}

	_ = s.repos.TransactionEvents.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     entity.TransactionEventNotificationPublished,
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	return nil
}

func (s *PaymentService) recordDispatchFailure(ctx context.Context, tx *entity.PaymentTransaction, now time.Time, dispatchErr error) error {
	tx.NotifyAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	tx.NotifyLastErr = &trimmed

	maxAttempts := s.paymentsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if tx.NotifyAttempts >= maxAttempts {
		tx.NotifyStatus = entity.NotifyFailed
		tx.NotifyNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.NotifyRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		tx.NotifyStatus = entity.NotifyPending
		tx.NotifyNextAt = &next
	}
	tx.UpdatedAt = now

	if err := s.repos.Transactions.UpdateNotification(ctx, tx); err != nil {
		return err
	}

	_ = s.repos.TransactionEvents.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     entity.TransactionEventNotificationFailed,
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
