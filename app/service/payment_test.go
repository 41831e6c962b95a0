package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/ratelimit"
)

func TestCreatePaymentMockCompletesAndCredits(t *testing.T) {
	h := newTestHarness(t)

	result, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Replayed {
		t.Fatal("expected first request not to be a replay")
	}

	tx := result.Transaction
	if tx.Status != entity.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", tx.Status)
	}
	if tx.CommissionCredits != 70 || tx.AmountCredited() != 930 || tx.CommissionPercent != "7" {
		t.Fatalf("unexpected commission: %+v", tx)
	}
	if tx.ConfirmationKey == nil || *tx.ConfirmationKey != "mock:"+tx.ID {
		t.Fatalf("unexpected confirmation key: %v", tx.ConfirmationKey)
	}
	if tx.NotifyStatus != entity.NotifyPending {
		t.Fatalf("expected notification queued, got %d", tx.NotifyStatus)
	}

	wallet := h.store.Wallet(testWalletID)
	if wallet.BalanceCredits != 930 || wallet.LifetimeTopUpCredits != 930 {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}

	events := h.store.EventsFor(tx.ID)
	if len(events) != 2 || events[0].EventType != entity.TransactionEventCreated || events[1].EventType != entity.TransactionEventCompleted {
		t.Fatalf("unexpected audit trail: %+v", events)
	}
}

func TestCreatePaymentReplayReturnsSameTransaction(t *testing.T) {
	h := newTestHarness(t)
	key := "topup-user1-0000000002"

	first, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq(key))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a replay returns the stored row even when the body differs
	req := newCreateReq(key)
	req.amount = 5000
	second, err := h.svc.CreatePayment(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("unexpected replay error: %v", err)
	}
	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Transaction.ID, second)
	}
	if second.Transaction.AmountCredits != 1000 {
		t.Fatalf("expected stored amount, got %d", second.Transaction.AmountCredits)
	}
	if h.store.TransactionCount() != 1 {
		t.Fatalf("expected one transaction, got %d", h.store.TransactionCount())
	}
	if h.store.Wallet(testWalletID).BalanceCredits != 930 {
		t.Fatal("expected wallet to be credited exactly once")
	}
	if h.limiter.calls != 1 {
		t.Fatalf("expected replay not to consume rate limit, got %d checks", h.limiter.calls)
	}
}

func TestCreatePaymentKeyOwnedByAnotherUser(t *testing.T) {
	h := newTestHarness(t)
	key := "topup-user1-0000000003"

	if _, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq(key)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := h.svc.CreatePayment(context.Background(), "user-2", newCreateReq(key))
	if !errors.Is(err, ErrIdempotencyKeyConflict) {
		t.Fatalf("expected key conflict, got %v", err)
	}
}

func TestCreatePaymentRejectsMalformedKey(t *testing.T) {
	h := newTestHarness(t)

	for _, key := range []string{"", "short-key", "topup user1 0000000004", "topup-user1-000000000/"} {
		if _, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq(key)); !errors.Is(err, ErrInvalidIdempotencyKey) {
			t.Fatalf("expected invalid key error for %q, got %v", key, err)
		}
	}
	if h.store.TransactionCount() != 0 {
		t.Fatal("expected no transactions")
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	h := newTestHarness(t)

	req := newCreateReq("topup-user1-0000000005")
	req.amount = 0
	if _, err := h.svc.CreatePayment(context.Background(), testUserID, req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}

	req = newCreateReq("topup-user1-0000000005")
	req.transactionType = "refund"
	if _, err := h.svc.CreatePayment(context.Background(), testUserID, req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid transaction type, got %v", err)
	}

	req = newCreateReq("topup-user1-0000000005")
	req.provider = "paypal"
	if _, err := h.svc.CreatePayment(context.Background(), testUserID, req); !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}

	req = newCreateReq("topup-user1-0000000005")
	req.walletID = "wallet-of-someone-else"
	if _, err := h.svc.CreatePayment(context.Background(), testUserID, req); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestCreatePaymentForeignWallet(t *testing.T) {
	h := newTestHarness(t)
	h.store.PutWallet(&entity.Wallet{ID: "wallet-2", UserID: "user-2"})

	req := newCreateReq("topup-user1-0000000006")
	req.walletID = "wallet-2"
	if _, err := h.svc.CreatePayment(context.Background(), testUserID, req); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestCreatePaymentRateLimited(t *testing.T) {
	h := newTestHarness(t)
	resetAt := testNow.Add(30 * time.Second)
	h.limiter.result = ratelimit.Result{Allowed: false, ResetAt: resetAt}

	_, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000007"))
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !rateErr.ResetAt.Equal(resetAt) {
		t.Fatalf("unexpected reset at %v", rateErr.ResetAt)
	}
	if h.store.TransactionCount() != 0 {
		t.Fatal("expected no transactions")
	}
}

func TestCreatePaymentLimiterFailureAllowsRequest(t *testing.T) {
	h := newTestHarness(t)
	h.limiter.err = errBoom

	if _, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000008")); err != nil {
		t.Fatalf("expected request to pass when limiter fails, got %v", err)
	}
}

func TestCreatePaymentRedirectProviderStaysPending(t *testing.T) {
	stripe := &fakeProvider{code: entity.ProviderStripe}
	h := newTestHarness(t, stripe)

	req := newCreateReq("topup-user1-0000000009")
	req.paymentMethodID = "pm_card_visa"
	result, err := h.svc.CreatePayment(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := result.Transaction
	if tx.Status != entity.TransactionStatusPending || tx.Provider != entity.ProviderStripe {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.ProviderPaymentIntentID == nil || *tx.ProviderPaymentIntentID != "pi_"+tx.ID {
		t.Fatalf("unexpected intent id: %v", tx.ProviderPaymentIntentID)
	}
	if tx.Metadata[entity.MetadataClientSecret] != "secret_"+tx.ID {
		t.Fatalf("expected client secret in metadata, got %v", tx.Metadata)
	}
	if tx.PaymentMethodID == nil || *tx.PaymentMethodID != "pm_card_visa" {
		t.Fatalf("unexpected payment method: %v", tx.PaymentMethodID)
	}
	if h.store.Wallet(testWalletID).BalanceCredits != 0 {
		t.Fatal("expected no credit before confirmation")
	}
}

func TestCreatePaymentInsertFailureCancelsIntent(t *testing.T) {
	stripe := &fakeProvider{code: entity.ProviderStripe}
	h := newTestHarness(t, stripe)
	h.store.CreateTransactionErr = errBoom

	_, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000010"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if len(stripe.cancels) != 1 {
		t.Fatalf("expected compensating cancel, got %v", stripe.cancels)
	}
}

func TestCreatePaymentProviderFailureWritesNothing(t *testing.T) {
	stripe := &fakeProvider{code: entity.ProviderStripe, createErr: errBoom}
	h := newTestHarness(t, stripe)

	_, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000011"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if h.store.TransactionCount() != 0 {
		t.Fatal("expected no transaction row")
	}
}

func TestCreatePaymentReplayFinishesPendingMock(t *testing.T) {
	h := newTestHarness(t)
	intent := "mock_tx-pending"
	h.store.PutTransaction(&entity.PaymentTransaction{
		ID:                      "tx-pending",
		IdempotencyKey:          "topup-user1-0000000012",
		WalletID:                testWalletID,
		UserID:                  testUserID,
		AmountCredits:           1000,
		CommissionCredits:       70,
		TransactionType:         entity.TransactionTypeTopUp,
		Provider:                entity.ProviderMock,
		ProviderPaymentIntentID: &intent,
		Status:                  entity.TransactionStatusPending,
		CreatedAt:               testNow,
		UpdatedAt:               testNow,
	})

	result, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000012"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Replayed || result.Transaction.Status != entity.TransactionStatusCompleted {
		t.Fatalf("expected completed replay, got %+v", result)
	}
	if h.store.Wallet(testWalletID).BalanceCredits != 930 {
		t.Fatal("expected wallet credit on replay completion")
	}
}

func TestOrderPaymentDoesNotCountAsTopUp(t *testing.T) {
	h := newTestHarness(t)
	h.store.PutCommissionPolicy(entity.TransactionTypeOrderPayment, "0")

	req := newCreateReq("order-user1-0000000013")
	req.transactionType = "order_payment"
	result, err := h.svc.CreatePayment(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transaction.CommissionCredits != 0 {
		t.Fatalf("expected zero commission, got %d", result.Transaction.CommissionCredits)
	}
	wallet := h.store.Wallet(testWalletID)
	if wallet.BalanceCredits != 1000 || wallet.LifetimeTopUpCredits != 0 {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}
}

func TestCreatePaymentComputesCommissionFromStoredPolicy(t *testing.T) {
	h := newTestHarness(t)
	h.store.PutCommissionPolicy(entity.TransactionTypeTopUp, "12.5")

	req := newCreateReq("topup-user1-0000000015")
	req.amount = 1001
	result, err := h.svc.CreatePayment(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := h.store.Transaction(result.Transaction.ID)
	if stored.CommissionCredits != 125 || stored.CommissionPercent != "12.5" {
		t.Fatalf("expected floor(1001 * 12.5%%) = 125 at 12.5%%, got %d at %s%%", stored.CommissionCredits, stored.CommissionPercent)
	}
	if wallet := h.store.Wallet(testWalletID); wallet.BalanceCredits != 876 {
		t.Fatalf("expected 876 credited, got %+v", wallet)
	}
}

func TestGetUserTransactionHidesForeignRows(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000014"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := h.svc.GetUserTransaction(context.Background(), testUserID, result.Transaction.ID); err != nil {
		t.Fatalf("expected owner to read transaction, got %v", err)
	}
	if _, err := h.svc.GetUserTransaction(context.Background(), "user-2", result.Transaction.ID); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
	if _, err := h.svc.GetTransaction(context.Background(), "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type listReq struct {
	userID, walletID, status, provider string
	limit, offset                      int32
}

func (r listReq) GetUserId() string   { return r.userID }
func (r listReq) GetWalletId() string { return r.walletID }
func (r listReq) GetStatus() string   { return r.status }
func (r listReq) GetProvider() string { return r.provider }
func (r listReq) GetLimit() int32     { return r.limit }
func (r listReq) GetOffset() int32    { return r.offset }

func TestListTransactions(t *testing.T) {
	h := newTestHarness(t)
	for _, key := range []string{"topup-user1-0000000015", "topup-user1-0000000016"} {
		if _, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq(key)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := h.svc.ListTransactions(context.Background(), listReq{userID: testUserID, status: "COMPLETED"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(items))
	}

	if _, err := h.svc.ListTransactions(context.Background(), listReq{limit: 501}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid limit, got %v", err)
	}
}
