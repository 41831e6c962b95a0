package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

const stripeTestSecret = "whsec_test"

func signStripePayload(payload []byte, ts time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeTestSecret,
		Timestamp: ts,
	})
	return signed.Header
}

func newTestStripeProvider(apiURL string) *StripeProvider {
	return NewStripeProvider(StripeConfig{
		SecretKey:                 "sk_test_123",
		WebhookSecret:             stripeTestSecret,
		Currency:                  "rub",
		SignatureToleranceSeconds: 300,
		APIURL:                    apiURL,
	})
}

func TestStripeCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "user1_1700000000_abcde12345" {
			t.Errorf("unexpected idempotency key: %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "100000" {
			t.Errorf("unexpected amount: %s", got)
		}
		if got := r.PostForm.Get("currency"); got != "rub" {
			t.Errorf("unexpected currency: %s", got)
		}
		if got := r.PostForm.Get("confirmation_method"); got != "manual" {
			t.Errorf("unexpected confirmation method: %s", got)
		}
		if got := r.PostForm.Get("metadata[transaction_id]"); got != "tx-1" {
			t.Errorf("unexpected transaction metadata: %s", got)
		}
		if got := r.PostForm.Get("metadata[wallet_id]"); got != "wallet-1" {
			t.Errorf("unexpected wallet metadata: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_abc","status":"requires_payment_method"}`))
	}))
	defer server.Close()

	p := newTestStripeProvider(server.URL)
	out, err := p.CreatePayment(context.Background(), &CreateInput{
		TransactionID:  "tx-1",
		WalletID:       "wallet-1",
		UserID:         "user-1",
		AmountCredits:  1000,
		IdempotencyKey: "user1_1700000000_abcde12345",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.ProviderPaymentID != "pi_1" {
		t.Fatalf("unexpected provider payment id: %s", out.ProviderPaymentID)
	}
	if out.ClientSecret == nil || *out.ClientSecret != "pi_1_secret_abc" {
		t.Fatalf("unexpected client secret: %v", out.ClientSecret)
	}
	if out.Completed {
		t.Fatal("stripe payments must not complete synchronously")
	}
}

func TestStripeCreatePaymentRequiresSecretKey(t *testing.T) {
	p := NewStripeProvider(StripeConfig{})
	_, err := p.CreatePayment(context.Background(), &CreateInput{TransactionID: "tx-1", AmountCredits: 10})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStripeCancelPayment(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.URL.Path != "/v1/payment_intents/pi_1/cancel" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "cancel:key-1" {
			t.Errorf("unexpected idempotency key: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"canceled"}`))
	}))
	defer server.Close()

	p := newTestStripeProvider(server.URL)
	if err := p.CancelPayment(context.Background(), "pi_1", "key-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected cancel request")
	}
}

func TestStripeVerifyAndParseWebhookSucceeded(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"transaction_id":"tx-1","wallet_id":"wallet-1"}}}}`)
	p := newTestStripeProvider("")

	event, err := p.VerifyAndParseWebhook(context.Background(), payload, signStripePayload(payload, time.Now()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.EventID != "evt_1" || event.Outcome != OutcomeSucceeded {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.TransactionID != "tx-1" || event.ProviderPaymentID != "pi_1" {
		t.Fatalf("unexpected correlation: %+v", event)
	}
}

func TestStripeVerifyAndParseWebhookFailed(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"transaction_id":"tx-1"},"last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`)
	p := newTestStripeProvider("")

	event, err := p.VerifyAndParseWebhook(context.Background(), payload, signStripePayload(payload, time.Now()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Outcome != OutcomeFailed {
		t.Fatalf("unexpected outcome: %s", event.Outcome)
	}
	if event.FailureCode != "card_declined" || event.FailureMessage != "Your card was declined." {
		t.Fatalf("unexpected failure details: %+v", event)
	}
}

func TestStripeVerifyAndParseWebhookUnhandledType(t *testing.T) {
	payload := []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)
	p := newTestStripeProvider("")

	event, err := p.VerifyAndParseWebhook(context.Background(), payload, signStripePayload(payload, time.Now()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Outcome != OutcomeUnhandled {
		t.Fatalf("unexpected outcome: %s", event.Outcome)
	}
}

func TestStripeVerifyAndParseWebhookRejectsTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"transaction_id":"tx-1"}}}}`)
	header := signStripePayload(payload, time.Now())
	tampered := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"transaction_id":"tx-2"}}}}`)

	p := newTestStripeProvider("")
	if _, err := p.VerifyAndParseWebhook(context.Background(), tampered, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyAndParseWebhookRejectsStaleSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	header := signStripePayload(payload, time.Now().Add(-time.Hour))

	p := newTestStripeProvider("")
	if _, err := p.VerifyAndParseWebhook(context.Background(), payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, err := p.VerifyAndParseWebhook(context.Background(), payload, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}
