package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/event"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/provider"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/ratelimit"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
	"github.com/vibast-solutions/ms-go-wallet-payments/config"
)

const (
	defaultListLimit         = int32(100)
	maxListLimit             = int32(500)
	defaultBatchSize         = int32(100)
	defaultMinIdempotencyLen = 20

	defaultInFlightWait = time.Second
	defaultInFlightPoll = 100 * time.Millisecond
)

// transactionNamespace scopes transaction ids derived from idempotency keys.
var transactionNamespace = uuid.MustParse("5d0c7a52-3f4e-4b8e-9a51-6f1e2c9b7d30")

type createPaymentRequest interface {
	GetWalletId() string
	GetAmount() int64
	GetPaymentMethodId() string
	GetIdempotencyKey() string
	GetProvider() string
	GetTransactionType() string
}

type listTransactionsRequest interface {
	GetUserId() string
	GetWalletId() string
	GetStatus() string
	GetProvider() string
	GetLimit() int32
	GetOffset() int32
}

type transactionRepository interface {
	Create(ctx context.Context, tx *entity.PaymentTransaction) error
	UpdateNotification(ctx context.Context, tx *entity.PaymentTransaction) error
	TouchPending(ctx context.Context, id string, at time.Time) error
	FindByID(ctx context.Context, id string) (*entity.PaymentTransaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentTransaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.PaymentTransaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error)
	ListDueNotifications(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error)
}

type transactionEventRepository interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
}

type webhookEventRepository interface {
	Create(ctx context.Context, event *entity.WebhookEvent) error
	FindByProviderEventID(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, provider, eventID string, processedAt time.Time) error
	MarkFailed(ctx context.Context, provider, eventID, processingError string) error
}

type walletRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Wallet, error)
}

// Repositories groups the storage ports the payment service reads and writes directly.
type Repositories struct {
	Transactions      transactionRepository
	TransactionEvents transactionEventRepository
	WebhookEvents     webhookEventRepository
	Wallets           walletRepository
}

// CreatePaymentResult marks whether the transaction was served from an earlier request.
type CreatePaymentResult struct {
	Transaction *entity.PaymentTransaction
	Replayed    bool
}

type PaymentService struct {
	repos       Repositories
	ledger      *LedgerService
	commission  *CommissionService
	limiter     ratelimit.Limiter
	publisher   event.Publisher
	providerReg *provider.Registry
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	now         func() time.Time

	// inFlightWait bounds how long a request whose provider call failed looks for a row
	// written under the same key by a concurrent request.
	inFlightWait time.Duration
	inFlightPoll time.Duration
}

func NewPaymentService(
	repos Repositories,
	ledger *LedgerService,
	commission *CommissionService,
	limiter ratelimit.Limiter,
	publisher event.Publisher,
	providerReg *provider.Registry,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	return &PaymentService{
		repos:       repos,
		ledger:      ledger,
		commission:  commission,
		limiter:     limiter,
		publisher:   publisher,
		providerReg: providerReg,
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("payment-service"),
		now:         time.Now,

		inFlightWait: defaultInFlightWait,
		inFlightPoll: defaultInFlightPoll,
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, userID string, req createPaymentRequest) (*CreatePaymentResult, error) {
	idempotencyKey := strings.TrimSpace(req.GetIdempotencyKey())
	if !s.validIdempotencyKey(idempotencyKey) {
		return nil, ErrInvalidIdempotencyKey
	}

	userID = strings.TrimSpace(userID)
	walletID := strings.TrimSpace(req.GetWalletId())
	amount := req.GetAmount()
	if userID == "" || walletID == "" || amount <= 0 {
		return nil, ErrInvalidRequest
	}

	transactionType, err := normalizeTransactionType(req.GetTransactionType())
	if err != nil {
		return nil, err
	}

	providerClient, err := s.providerReg.Resolve(req.GetProvider())
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	existing, err := s.repos.Transactions.FindByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replay(ctx, userID, existing)
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	wallet, err := s.repos.Wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil || wallet.UserID != userID {
		return nil, ErrWalletNotFound
	}

	commission, percent := s.commission.Calculate(ctx, transactionType, amount)

	// Retries of one key send identical provider parameters, so the provider answers them
	// from its own idempotency cache instead of rejecting a parameter mismatch.
	transactionID := transactionIDForKey(idempotencyKey)
	paymentMethodID := normalizeOptionalString(req.GetPaymentMethodId())

	output, err := providerClient.CreatePayment(ctx, &provider.CreateInput{
		TransactionID:   transactionID,
		WalletID:        walletID,
		UserID:          userID,
		AmountCredits:   amount,
		PaymentMethodID: strings.TrimSpace(req.GetPaymentMethodId()),
		IdempotencyKey:  idempotencyKey,
	})
	if err != nil {
		if winner := s.awaitConcurrentWinner(ctx, idempotencyKey); winner != nil {
			return s.replay(ctx, userID, winner)
		}
		return nil, fmt.Errorf("%s create payment: %w", providerClient.Code(), err)
	}

	now := s.now().UTC()
	providerPaymentID := output.ProviderPaymentID
	tx := &entity.PaymentTransaction{
		ID:                      transactionID,
		IdempotencyKey:          idempotencyKey,
		WalletID:                walletID,
		UserID:                  userID,
		AmountCredits:           amount,
		CommissionCredits:       commission,
		CommissionPercent:       percent,
		TransactionType:         transactionType,
		PaymentMethodID:         paymentMethodID,
		Provider:                providerClient.Code(),
		ProviderPaymentIntentID: &providerPaymentID,
		Status:                  entity.TransactionStatusPending,
		Metadata:                providerMetadata(output),
		NotifyStatus:            entity.NotifyNone,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.repos.Transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrTransactionAlreadyExists) {
			winner, findErr := s.repos.Transactions.FindByIdempotencyKey(ctx, idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				if !sameProviderIntent(winner, tx) {
					s.cancelOrphanedIntent(ctx, providerClient, tx, err)
				}
				return s.replay(ctx, userID, winner)
			}
		}

		s.cancelOrphanedIntent(ctx, providerClient, tx, err)
		return nil, err
	}

	_ = s.repos.TransactionEvents.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     entity.TransactionEventCreated,
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	if output.Completed {
		completed, err := s.completeSynchronously(ctx, tx)
		if err != nil {
			return nil, err
		}
		tx = completed
	}

	return &CreatePaymentResult{Transaction: tx}, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, id string) (*entity.PaymentTransaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidRequest
	}

	tx, err := s.repos.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// GetUserTransaction hides transactions owned by other users behind ErrTransactionNotFound.
func (s *PaymentService) GetUserTransaction(ctx context.Context, userID, id string) (*entity.PaymentTransaction, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != strings.TrimSpace(userID) {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, req listTransactionsRequest) ([]*entity.PaymentTransaction, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit || req.GetOffset() < 0 {
		return nil, ErrInvalidRequest
	}

	filter := repository.TransactionFilter{
		UserID:   strings.TrimSpace(req.GetUserId()),
		WalletID: strings.TrimSpace(req.GetWalletId()),
		Status:   strings.ToLower(strings.TrimSpace(req.GetStatus())),
		Provider: strings.ToLower(strings.TrimSpace(req.GetProvider())),
		Limit:    limit,
		Offset:   req.GetOffset(),
	}

	return s.repos.Transactions.List(ctx, filter)
}

func (s *PaymentService) replay(ctx context.Context, userID string, existing *entity.PaymentTransaction) (*CreatePaymentResult, error) {
	if existing.UserID != userID {
		return nil, ErrIdempotencyKeyConflict
	}

	// A mock payment whose synchronous confirmation failed earlier is finished on replay.
	if existing.Provider == entity.ProviderMock && existing.Status == entity.TransactionStatusPending {
		completed, err := s.completeSynchronously(ctx, existing)
		if err != nil {
			return nil, err
		}
		existing = completed
	}

	return &CreatePaymentResult{Transaction: existing, Replayed: true}, nil
}

func (s *PaymentService) completeSynchronously(ctx context.Context, tx *entity.PaymentTransaction) (*entity.PaymentTransaction, error) {
	providerPaymentID := ""
	if tx.ProviderPaymentIntentID != nil {
		providerPaymentID = *tx.ProviderPaymentIntentID
	}

	completed, _, err := s.ledger.ConfirmPayment(ctx, tx.ID, providerPaymentID, tx.Provider, "mock:"+tx.ID)
	if err != nil {
		s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("Synchronous confirmation failed")
		return nil, err
	}
	if completed == nil {
		return s.GetTransaction(ctx, tx.ID)
	}
	return completed, nil
}

func (s *PaymentService) checkRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}

	result, err := s.limiter.Check(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Rate limit check failed, allowing request")
		return nil
	}
	if !result.Allowed {
		return &RateLimitError{ResetAt: result.ResetAt}
	}
	return nil
}

// transactionIDForKey derives the transaction id from the idempotency key.
func transactionIDForKey(idempotencyKey string) string {
	return uuid.NewSHA1(transactionNamespace, []byte(idempotencyKey)).String()
}

// awaitConcurrentWinner polls for a row stored under key by a request that was still in flight
// when this one reached the provider. It returns nil once inFlightWait has passed.
func (s *PaymentService) awaitConcurrentWinner(ctx context.Context, key string) *entity.PaymentTransaction {
	poll := s.inFlightPoll
	if poll <= 0 {
		poll = defaultInFlightPoll
	}
	deadline := time.Now().Add(s.inFlightWait)

	for {
		existing, err := s.repos.Transactions.FindByIdempotencyKey(ctx, key)
		if err == nil && existing != nil {
			return existing
		}
		if !time.Now().Add(poll).Before(deadline) {
			return nil
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func sameProviderIntent(a, b *entity.PaymentTransaction) bool {
	if a.ProviderPaymentIntentID == nil || b.ProviderPaymentIntentID == nil {
		return a.ProviderPaymentIntentID == b.ProviderPaymentIntentID
	}
	return a.Provider == b.Provider && *a.ProviderPaymentIntentID == *b.ProviderPaymentIntentID
}

// cancelOrphanedIntent releases a provider-side intent that has no ledger row behind it.
func (s *PaymentService) cancelOrphanedIntent(ctx context.Context, providerClient provider.Provider, tx *entity.PaymentTransaction, cause error) {
	logger := s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"provider":       tx.Provider,
	})
	logger.WithError(cause).Error("Ledger insert failed after provider intent was created")

	if tx.ProviderPaymentIntentID == nil || *tx.ProviderPaymentIntentID == "" {
		return
	}
	cancelCtx := context.WithoutCancel(ctx)
	if err := providerClient.CancelPayment(cancelCtx, *tx.ProviderPaymentIntentID, tx.IdempotencyKey); err != nil {
		logger.WithError(err).Error("Compensating provider cancel failed")
	}
}

func (s *PaymentService) validIdempotencyKey(key string) bool {
	minLen := s.paymentsCfg.MinIdempotencyKeyLength
	if minLen <= 0 {
		minLen = defaultMinIdempotencyLen
	}
	if len(key) < minLen {
		return false
	}

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == ':', r == '.':
		default:
			return false
		}
	}
	return true
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeTransactionType(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", entity.TransactionTypeTopUp:
		return entity.TransactionTypeTopUp, nil
	case entity.TransactionTypeOrderPayment:
		return entity.TransactionTypeOrderPayment, nil
	default:
		return "", fmt.Errorf("%w: unsupported transaction type", ErrInvalidRequest)
	}
}

func providerMetadata(output *provider.CreateOutput) map[string]string {
	metadata := map[string]string{}
	if output.ClientSecret != nil {
		metadata[entity.MetadataClientSecret] = *output.ClientSecret
	}
	if output.ConfirmationURL != nil {
		metadata[entity.MetadataConfirmationURL] = *output.ConfirmationURL
	}
	return metadata
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
