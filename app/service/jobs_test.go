package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/event"
)

func TestRunExpirePendingBatchRequestsCancelOnce(t *testing.T) {
	stripe := &fakeProvider{code: entity.ProviderStripe}
	h := newTestHarness(t, stripe)

	stale := pendingStripeTransaction("tx-stale", "pi_stale")
	stale.UpdatedAt = testNow.Add(-2 * time.Hour)
	h.store.PutTransaction(stale)
	h.store.PutTransaction(pendingStripeTransaction("tx-fresh", "pi_fresh"))

	if err := h.svc.RunExpirePendingBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stripe.cancels) != 1 || stripe.cancels[0] != "pi_stale" {
		t.Fatalf("expected one cancel for the stale intent, got %v", stripe.cancels)
	}

	tx := h.store.Transaction("tx-stale")
	if tx.Status != entity.TransactionStatusPending || !tx.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected pending row touched at now, got %+v", tx)
	}
	events := h.store.EventsFor("tx-stale")
	if len(events) != 1 || events[0].EventType != entity.TransactionEventCancelRequested {
		t.Fatalf("unexpected audit trail: %+v", events)
	}

	if err := h.svc.RunExpirePendingBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stripe.cancels) != 1 {
		t.Fatalf("expected no second cancel within the timeout, got %v", stripe.cancels)
	}
}

func TestRunExpirePendingBatchKeepsFirstError(t *testing.T) {
	stripe := &fakeProvider{code: entity.ProviderStripe, cancelErr: errBoom}
	h := newTestHarness(t, stripe)

	stale := pendingStripeTransaction("tx-stale", "pi_stale")
	stale.UpdatedAt = testNow.Add(-2 * time.Hour)
	h.store.PutTransaction(stale)

	if err := h.svc.RunExpirePendingBatch(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected cancel error, got %v", err)
	}
	if !h.store.Transaction("tx-stale").UpdatedAt.Equal(testNow) {
		t.Fatal("expected row to be touched even when cancel fails")
	}
}

func TestRunDispatchNotificationsBatchPublishes(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.svc.RunDispatchNotificationsBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(h.publisher.events))
	}
	evt := h.publisher.events[0]
	if evt.EventType != event.TypeTransactionCompleted || evt.TransactionID != result.Transaction.ID || evt.AmountCredited != 930 {
		t.Fatalf("unexpected event: %+v", evt)
	}

	tx := h.store.Transaction(result.Transaction.ID)
	if tx.NotifyStatus != entity.NotifySuccess || tx.NotifyNextAt != nil {
		t.Fatalf("expected delivered notification, got %+v", tx)
	}

	if err := h.svc.RunDispatchNotificationsBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.publisher.events) != 1 {
		t.Fatal("expected no republish after success")
	}
}

func TestRunDispatchNotificationsBatchRetriesThenGivesUp(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.svc.CreatePayment(context.Background(), testUserID, newCreateReq("topup-user1-0000000101"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.publisher.err = errBoom

	if err := h.svc.RunDispatchNotificationsBatch(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	tx := h.store.Transaction(result.Transaction.ID)
	if tx.NotifyStatus != entity.NotifyPending || tx.NotifyAttempts != 1 {
		t.Fatalf("expected retry scheduled, got %+v", tx)
	}
	if tx.NotifyNextAt == nil || !tx.NotifyNextAt.Equal(testNow.Add(5*time.Minute)) {
		t.Fatalf("unexpected next attempt: %v", tx.NotifyNextAt)
	}

	// not due yet
	if err := h.svc.RunDispatchNotificationsBatch(context.Background()); err != nil {
		t.Fatalf("expected nothing due, got %v", err)
	}

	h.clock = testNow.Add(6 * time.Minute)
	if err := h.svc.RunDispatchNotificationsBatch(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	tx = h.store.Transaction(result.Transaction.ID)
	if tx.NotifyStatus != entity.NotifyFailed || tx.NotifyAttempts != 2 || tx.NotifyLastErr == nil {
		t.Fatalf("expected notification to give up, got %+v", tx)
	}
}
