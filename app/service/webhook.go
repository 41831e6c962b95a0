package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/provider"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/sanitize"
)

type WebhookResult struct {
	EventID   string
	Outcome   string
	Duplicate bool
	Applied   bool

	Transaction *entity.PaymentTransaction
}

// HandleWebhook authenticates, de-duplicates, records and applies one provider notification.
// Every error after authentication leaves the event unprocessed so the provider redelivers it.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerCode string, payload []byte, signature string) (*WebhookResult, error) {
	providerClient, err := s.providerReg.Get(providerCode)
	if err != nil {
		return nil, ErrProviderUnsupported
	}
	providerCode = providerClient.Code()
	logger := s.logger.WithField("provider", providerCode)

	parsed, err := providerClient.VerifyAndParseWebhook(ctx, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrWebhookNotSupported):
			return nil, ErrProviderUnsupported
		case errors.Is(err, provider.ErrMalformedPayload):
			logger.WithError(err).Warn("Rejected malformed webhook")
			return nil, ErrInvalidWebhookPayload
		case errors.Is(err, provider.ErrNotConfigured):
			logger.WithError(err).Error("Webhook secret is not configured")
			return nil, ErrWebhookSignatureInvalid
		default:
			logger.WithError(err).Warn("Rejected webhook with invalid signature")
			return nil, ErrWebhookSignatureInvalid
		}
	}

	logger = logger.WithFields(logrus.Fields{
		"event_id":   parsed.EventID,
		"event_type": parsed.EventType,
	})
	result := &WebhookResult{EventID: parsed.EventID, Outcome: parsed.Outcome}

	stored, err := s.recordWebhookEvent(ctx, providerCode, parsed, payload)
	if err != nil {
		return nil, err
	}
	if stored.Processed {
		logger.Info("Duplicate webhook acknowledged")
		result.Duplicate = true
		return result, nil
	}

	if parsed.Outcome == provider.OutcomeUnhandled {
		if err := s.repos.WebhookEvents.MarkProcessed(ctx, providerCode, parsed.EventID, s.now().UTC()); err != nil {
			return nil, err
		}
		logger.Debug("Webhook event type not handled")
		return result, nil
	}

	transactionID := strings.TrimSpace(parsed.TransactionID)
	if transactionID == "" {
		s.markWebhookFailed(ctx, logger, providerCode, parsed.EventID, ErrMissingTransactionID.Error())
		logger.Error("Webhook carries no transaction_id metadata")
		return nil, ErrMissingTransactionID
	}
	logger = logger.WithField("transaction_id", transactionID)

	var tx *entity.PaymentTransaction
	var applied bool
	if parsed.Outcome == provider.OutcomeSucceeded {
		tx, applied, err = s.ledger.ConfirmPayment(ctx, transactionID, parsed.ProviderPaymentID, providerCode, parsed.EventID)
	} else {
		tx, applied, err = s.ledger.FailPayment(ctx, transactionID, parsed.FailureCode, parsed.FailureMessage, providerCode, parsed.EventID)
	}
	if err != nil {
		s.markWebhookFailed(ctx, logger, providerCode, parsed.EventID, err.Error())
		switch {
		case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrWebhookCorrelation):
			logger.WithError(err).Error("Webhook does not correlate with a known transaction, manual investigation required")
			return nil, err
		default:
			logger.WithError(err).Error("Webhook processing failed")
			return nil, fmt.Errorf("%w: %v", ErrWebhookProcessing, err)
		}
	}

	result.Applied = applied
	result.Transaction = tx
	if applied {
		logger.WithField("status", tx.Status).Info("Webhook applied")
	} else {
		logger.Info("Webhook targets a finalized transaction, acknowledged without changes")
	}

	return result, nil
}

// recordWebhookEvent stores the sanitized payload once per (provider, event id) and returns
// the stored row, which may come from an earlier or concurrent delivery.
func (s *PaymentService) recordWebhookEvent(ctx context.Context, providerCode string, parsed *provider.WebhookEvent, payload []byte) (*entity.WebhookEvent, error) {
	existing, err := s.repos.WebhookEvents.FindByProviderEventID(ctx, providerCode, parsed.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sanitized, err := sanitize.JSON(payload)
	if err != nil {
		return nil, ErrInvalidWebhookPayload
	}

	stored := &entity.WebhookEvent{
		Provider:      providerCode,
		EventID:       parsed.EventID,
		EventType:     parsed.EventType,
		TransactionID: normalizeOptionalString(parsed.TransactionID),
		PayloadJSON:   sanitized,
		ReceivedAt:    s.now().UTC(),
	}
	if err := s.repos.WebhookEvents.Create(ctx, stored); err != nil {
		if !errors.Is(err, repository.ErrWebhookEventAlreadyExists) {
			return nil, err
		}
		existing, err := s.repos.WebhookEvents.FindByProviderEventID(ctx, providerCode, parsed.EventID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.logger.WithFields(logrus.Fields{
		"provider":   providerCode,
		"event_id":   parsed.EventID,
		"event_type": parsed.EventType,
		"payload":    sanitized,
	}).Debug("Webhook event recorded")

	return stored, nil
}

func (s *PaymentService) markWebhookFailed(ctx context.Context, logger logrus.FieldLogger, providerCode, eventID, reason string) {
	if err := s.repos.WebhookEvents.MarkFailed(ctx, providerCode, eventID, truncate(reason, 1024)); err != nil {
		logger.WithError(err).Warn("Failed to record webhook processing error")
	}
}
