// Package memrepo holds in-memory doubles of the SQL repositories with the same
// not-found, duplicate and settlement semantics. Tests use it in place of a database.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
)

type Store struct {
	mu sync.Mutex

	transactions map[string]*entity.PaymentTransaction
	events       []*entity.TransactionEvent
	webhooks     map[string]*entity.WebhookEvent
	wallets      map[string]*entity.Wallet
	policies     map[string]string
	nextEventID  uint64
	nextHookID   uint64

	// CreateTransactionErr, when set, fails every transaction insert.
	CreateTransactionErr error
	// SettleErr, when set, fails every settlement before anything is written.
	SettleErr error
}

func NewStore() *Store {
	return &Store{
		transactions: map[string]*entity.PaymentTransaction{},
		webhooks:     map[string]*entity.WebhookEvent{},
		wallets:      map[string]*entity.Wallet{},
		policies:     map[string]string{},
	}
}

func (s *Store) Transactions() *TransactionRepository {
	return &TransactionRepository{store: s}
}

func (s *Store) TransactionEvents() *TransactionEventRepository {
	return &TransactionEventRepository{store: s}
}

func (s *Store) WebhookEvents() *WebhookEventRepository {
	return &WebhookEventRepository{store: s}
}

func (s *Store) Wallets() *WalletRepository {
	return &WalletRepository{store: s}
}

func (s *Store) CommissionPolicies() *CommissionPolicyRepository {
	return &CommissionPolicyRepository{store: s}
}

func (s *Store) Ledger() *LedgerRepository {
	return &LedgerRepository{store: s}
}

func (s *Store) PutWallet(w *entity.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *w
	s.wallets[w.ID] = &copied
}

func (s *Store) PutTransaction(tx *entity.PaymentTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = cloneTransaction(tx)
}

func (s *Store) PutCommissionPolicy(operationType, percent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[operationType] = percent
}

func (s *Store) Wallet(id string) *entity.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil
	}
	copied := *w
	return &copied
}

func (s *Store) Transaction(id string) *entity.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTransaction(s.transactions[id])
}

func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *Store) WebhookEvent(provider, eventID string) *entity.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWebhook(s.webhooks[webhookKey(provider, eventID)])
}

func (s *Store) WebhookEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.webhooks)
}

// EventsFor returns the audit trail of one transaction in insertion order.
func (s *Store) EventsFor(transactionID string) []entity.TransactionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.TransactionEvent, 0)
	for _, ev := range s.events {
		if ev.TransactionID == transactionID {
			out = append(out, *ev)
		}
	}
	return out
}

type TransactionRepository struct {
	store *Store
}

func (r *TransactionRepository) Create(_ context.Context, tx *entity.PaymentTransaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateTransactionErr != nil {
		return s.CreateTransactionErr
	}
	if _, ok := s.transactions[tx.ID]; ok {
		return repository.ErrTransactionAlreadyExists
	}
	for _, existing := range s.transactions {
		if existing.IdempotencyKey == tx.IdempotencyKey {
			return repository.ErrTransactionAlreadyExists
		}
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (r *TransactionRepository) UpdateNotification(_ context.Context, tx *entity.PaymentTransaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transactions[tx.ID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	stored.NotifyStatus = tx.NotifyStatus
	stored.NotifyAttempts = tx.NotifyAttempts
	stored.NotifyNextAt = cloneTime(tx.NotifyNextAt)
	stored.NotifyLastErr = cloneString(tx.NotifyLastErr)
	stored.UpdatedAt = tx.UpdatedAt
	return nil
}

func (r *TransactionRepository) TouchPending(_ context.Context, id string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.transactions[id]; ok && stored.Status == entity.TransactionStatusPending {
		stored.UpdatedAt = at
	}
	return nil
}

func (r *TransactionRepository) FindByID(_ context.Context, id string) (*entity.PaymentTransaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTransaction(s.transactions[id]), nil
}

func (r *TransactionRepository) FindByIdempotencyKey(_ context.Context, key string) (*entity.PaymentTransaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions {
		if tx.IdempotencyKey == key {
			return cloneTransaction(tx), nil
		}
	}
	return nil, nil
}

func (r *TransactionRepository) List(_ context.Context, filter repository.TransactionFilter) ([]*entity.PaymentTransaction, error) {
	items := r.store.selectTransactions(func(tx *entity.PaymentTransaction) bool {
		return (filter.UserID == "" || tx.UserID == filter.UserID) &&
			(filter.WalletID == "" || tx.WalletID == filter.WalletID) &&
			(filter.Status == "" || tx.Status == filter.Status) &&
			(filter.Provider == "" || tx.Provider == filter.Provider)
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return page(items, filter.Limit, filter.Offset), nil
}

func (r *TransactionRepository) ListStalePending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	items := r.store.selectTransactions(func(tx *entity.PaymentTransaction) bool {
		return tx.Status == entity.TransactionStatusPending &&
			tx.Provider != entity.ProviderMock &&
			tx.ProviderPaymentIntentID != nil &&
			!tx.UpdatedAt.After(cutoff)
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	return page(items, limit, 0), nil
}

func (r *TransactionRepository) ListDueNotifications(_ context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	items := r.store.selectTransactions(func(tx *entity.PaymentTransaction) bool {
		return tx.NotifyStatus == entity.NotifyPending && tx.NotifyNextAt != nil && !tx.NotifyNextAt.After(now)
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].NotifyNextAt.Before(*items[j].NotifyNextAt) })
	return page(items, limit, 0), nil
}

func (r *TransactionRepository) CountCreatedSince(_ context.Context, userID string, since time.Time) (int, time.Time, error) {
	items := r.store.selectTransactions(func(tx *entity.PaymentTransaction) bool {
		return tx.UserID == userID && tx.CreatedAt.After(since)
	})
	var oldest time.Time
	for _, tx := range items {
		if oldest.IsZero() || tx.CreatedAt.Before(oldest) {
			oldest = tx.CreatedAt
		}
	}
	return len(items), oldest, nil
}

func (s *Store) selectTransactions(match func(*entity.PaymentTransaction) bool) []*entity.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*entity.PaymentTransaction, 0)
	for _, tx := range s.transactions {
		if match(tx) {
			items = append(items, cloneTransaction(tx))
		}
	}
	return items
}

type TransactionEventRepository struct {
	store *Store
}

func (r *TransactionEventRepository) Create(_ context.Context, ev *entity.TransactionEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEvent(ev)
	return nil
}

func (s *Store) appendEvent(ev *entity.TransactionEvent) {
	s.nextEventID++
	ev.ID = s.nextEventID
	copied := *ev
	s.events = append(s.events, &copied)
}

type WebhookEventRepository struct {
	store *Store
}

func (r *WebhookEventRepository) Create(_ context.Context, ev *entity.WebhookEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := webhookKey(ev.Provider, ev.EventID)
	if _, ok := s.webhooks[key]; ok {
		return repository.ErrWebhookEventAlreadyExists
	}
	s.nextHookID++
	ev.ID = s.nextHookID
	s.webhooks[key] = cloneWebhook(ev)
	return nil
}

func (r *WebhookEventRepository) FindByProviderEventID(_ context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneWebhook(s.webhooks[webhookKey(provider, eventID)]), nil
}

func (r *WebhookEventRepository) MarkProcessed(_ context.Context, provider, eventID string, processedAt time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markProcessed(provider, eventID, processedAt)
}

func (s *Store) markProcessed(provider, eventID string, processedAt time.Time) error {
	stored, ok := s.webhooks[webhookKey(provider, eventID)]
	if !ok {
		return repository.ErrWebhookEventNotFound
	}
	stored.Processed = true
	stored.ProcessingError = nil
	stored.ProcessedAt = cloneTime(&processedAt)
	return nil
}

func (r *WebhookEventRepository) MarkFailed(_ context.Context, provider, eventID, processingError string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.webhooks[webhookKey(provider, eventID)]; ok && !stored.Processed {
		stored.ProcessingError = &processingError
	}
	return nil
}

type WalletRepository struct {
	store *Store
}

func (r *WalletRepository) FindByID(_ context.Context, id string) (*entity.Wallet, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

type CommissionPolicyRepository struct {
	store *Store
}

func (r *CommissionPolicyRepository) FindPercent(_ context.Context, operationType string) (string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	percent, ok := s.policies[operationType]
	if !ok {
		return "", repository.ErrCommissionPolicyNotFound
	}
	return percent, nil
}

// LedgerRepository applies settlements under the store lock, which stands in for the row lock
// and database transaction of repository.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

func (r *LedgerRepository) Settle(_ context.Context, st repository.Settlement) (*entity.PaymentTransaction, error) {
	if !entity.IsTerminalStatus(st.Status) {
		return nil, repository.ErrInvalidSettlementStatus
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SettleErr != nil {
		return nil, s.SettleErr
	}

	stored, ok := s.transactions[st.TransactionID]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	if stored.Provider != st.Provider {
		return nil, repository.ErrProviderMismatch
	}
	if st.ProviderPaymentID != "" && stored.ProviderPaymentIntentID != nil && *stored.ProviderPaymentIntentID != st.ProviderPaymentID {
		return nil, repository.ErrProviderReferenceMismatch
	}

	if stored.IsTerminal() {
		if st.WebhookEventID != "" {
			if err := s.markProcessed(st.WebhookProvider, st.WebhookEventID, st.At); err != nil {
				return nil, err
			}
		}
		return cloneTransaction(stored), repository.ErrTransactionFinalized
	}

	var wallet *entity.Wallet
	item := cloneTransaction(stored)
	if st.Status == entity.TransactionStatusCompleted {
		wallet, ok = s.wallets[item.WalletID]
		if !ok {
			return nil, repository.ErrWalletNotFound
		}
	}
	if st.WebhookEventID != "" {
		if _, ok := s.webhooks[webhookKey(st.WebhookProvider, st.WebhookEventID)]; !ok {
			return nil, repository.ErrWebhookEventNotFound
		}
	}

	oldStatus := item.Status
	at := st.At
	item.Status = st.Status
	item.UpdatedAt = at
	item.CompletedAt = &at
	item.ConfirmationKey = optional(st.ConfirmationKey)
	item.ErrorCode = nil
	item.ErrorMessage = nil
	if st.Status == entity.TransactionStatusFailed {
		item.ErrorCode = optional(st.ErrorCode)
		item.ErrorMessage = optional(st.ErrorMessage)
	}
	item.NotifyStatus = entity.NotifyPending
	item.NotifyAttempts = 0
	item.NotifyNextAt = cloneTime(&at)
	item.NotifyLastErr = nil

	if wallet != nil {
		credited := item.AmountCredited()
		wallet.BalanceCredits += credited
		if item.TransactionType == entity.TransactionTypeTopUp {
			wallet.LifetimeTopUpCredits += credited
		}
		wallet.UpdatedAt = at
	}

	eventType := entity.TransactionEventCompleted
	if st.Status == entity.TransactionStatusFailed {
		eventType = entity.TransactionEventFailed
	}
	s.appendEvent(&entity.TransactionEvent{
		TransactionID:   item.ID,
		EventType:       eventType,
		OldStatus:       &oldStatus,
		NewStatus:       item.Status,
		ProviderEventID: optional(st.WebhookEventID),
		CreatedAt:       at,
	})
	if st.WebhookEventID != "" {
		_ = s.markProcessed(st.WebhookProvider, st.WebhookEventID, at)
	}

	s.transactions[item.ID] = cloneTransaction(item)
	return item, nil
}

func webhookKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func page(items []*entity.PaymentTransaction, limit, offset int32) []*entity.PaymentTransaction {
	if offset > 0 {
		if int(offset) >= len(items) {
			return []*entity.PaymentTransaction{}
		}
		items = items[offset:]
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTransaction(tx *entity.PaymentTransaction) *entity.PaymentTransaction {
	if tx == nil {
		return nil
	}
	out := *tx
	out.PaymentMethodID = cloneString(tx.PaymentMethodID)
	out.ProviderPaymentIntentID = cloneString(tx.ProviderPaymentIntentID)
	out.ErrorCode = cloneString(tx.ErrorCode)
	out.ErrorMessage = cloneString(tx.ErrorMessage)
	out.ConfirmationKey = cloneString(tx.ConfirmationKey)
	out.NotifyNextAt = cloneTime(tx.NotifyNextAt)
	out.NotifyLastErr = cloneString(tx.NotifyLastErr)
	out.CompletedAt = cloneTime(tx.CompletedAt)
	if tx.Metadata != nil {
		out.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneWebhook(ev *entity.WebhookEvent) *entity.WebhookEvent {
	if ev == nil {
		return nil
	}
	out := *ev
	out.TransactionID = cloneString(ev.TransactionID)
	out.ProcessingError = cloneString(ev.ProcessingError)
	out.ProcessedAt = cloneTime(ev.ProcessedAt)
	return &out
}
