package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/event"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/provider"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/ratelimit"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository/memrepo"
	"github.com/vibast-solutions/ms-go-wallet-payments/config"
)

const (
	testUserID   = "user-1"
	testWalletID = "wallet-1"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLimiter struct {
	mu     sync.Mutex
	result ratelimit.Result
	err    error
	calls  int
}

func (l *fakeLimiter) Check(context.Context, string) (ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.result, l.err
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []event.TransactionEvent
}

func (p *fakePublisher) PublishTransaction(_ context.Context, evt event.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

var errIdempotencyMismatch = errors.New("idempotency_error: key reused with different parameters")

// fakeProvider stands in for a redirect-style provider that never completes synchronously.
type fakeProvider struct {
	mu        sync.Mutex
	code      string
	createErr error
	cancelErr error
	cancels   []string
	calls     int

	// keyParams, when non-nil, rejects a reused idempotency key carrying another transaction id.
	keyParams map[string]string
	// distinctIntents opens a new intent on every call even for a reused key.
	distinctIntents bool
	// beforeCreate runs inside the provider call; a non-nil error is returned to the caller.
	beforeCreate func(call int, input *provider.CreateInput) error
}

func (p *fakeProvider) Code() string {
	return p.code
}

func (p *fakeProvider) CreatePayment(_ context.Context, input *provider.CreateInput) (*provider.CreateOutput, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	hook := p.beforeCreate
	p.mu.Unlock()

	if hook != nil {
		if err := hook(call, input); err != nil {
			return nil, err
		}
	}
	if p.createErr != nil {
		return nil, p.createErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keyParams != nil {
		if previous, ok := p.keyParams[input.IdempotencyKey]; ok && previous != input.TransactionID {
			return nil, errIdempotencyMismatch
		}
		p.keyParams[input.IdempotencyKey] = input.TransactionID
	}

	intent := "pi_" + input.TransactionID
	if p.distinctIntents {
		intent = fmt.Sprintf("pi_%s_%d", input.TransactionID, call)
	}
	secret := "secret_" + input.TransactionID
	return &provider.CreateOutput{
		ProviderPaymentID: intent,
		ClientSecret:      &secret,
	}, nil
}

func (p *fakeProvider) CancelPayment(_ context.Context, providerPaymentID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels = append(p.cancels, providerPaymentID)
	return p.cancelErr
}

func (p *fakeProvider) VerifyAndParseWebhook(context.Context, []byte, string) (*provider.WebhookEvent, error) {
	return nil, provider.ErrWebhookNotSupported
}

type testHarness struct {
	store     *memrepo.Store
	limiter   *fakeLimiter
	publisher *fakePublisher
	svc       *PaymentService
	clock     time.Time
}

func newTestHarness(t *testing.T, providers ...provider.Provider) *testHarness {
	t.Helper()

	if len(providers) == 0 {
		providers = []provider.Provider{provider.NewMockProvider()}
	}

	store := memrepo.NewStore()
	store.PutWallet(&entity.Wallet{ID: testWalletID, UserID: testUserID})

	h := &testHarness{
		store:     store,
		limiter:   &fakeLimiter{result: ratelimit.Result{Allowed: true}},
		publisher: &fakePublisher{},
		clock:     testNow,
	}

	ledger := NewLedgerService(store.Ledger())
	ledger.now = func() time.Time { return h.clock }

	h.svc = NewPaymentService(
		Repositories{
			Transactions:      store.Transactions(),
			TransactionEvents: store.TransactionEvents(),
			WebhookEvents:     store.WebhookEvents(),
			Wallets:           store.Wallets(),
		},
		ledger,
		NewCommissionService(store.CommissionPolicies(), "7"),
		h.limiter,
		h.publisher,
		provider.NewRegistry("", providers...),
		config.PaymentsConfig{
			MinIdempotencyKeyLength: 20,
			PendingTimeout:          time.Hour,
			JobBatchSize:            50,
			NotifyMaxAttempts:       2,
			NotifyRetryInterval:     5 * time.Minute,
		},
	)
	h.svc.now = func() time.Time { return h.clock }
	h.svc.inFlightWait = 20 * time.Millisecond
	h.svc.inFlightPoll = 5 * time.Millisecond

	return h
}

type createReq struct {
	walletID        string
	amount          int64
	paymentMethodID string
	idempotencyKey  string
	provider        string
	transactionType string
}

func (r createReq) GetWalletId() string        { return r.walletID }
func (r createReq) GetAmount() int64           { return r.amount }
func (r createReq) GetPaymentMethodId() string { return r.paymentMethodID }
func (r createReq) GetIdempotencyKey() string  { return r.idempotencyKey }
func (r createReq) GetProvider() string        { return r.provider }
func (r createReq) GetTransactionType() string { return r.transactionType }

func newCreateReq(key string) createReq {
	return createReq{walletID: testWalletID, amount: 1000, idempotencyKey: key}
}

var errBoom = errors.New("boom")
