package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

var stripeOutcomes = map[string]string{
	"payment_intent.succeeded":      OutcomeSucceeded,
	"payment_intent.payment_failed": OutcomeFailed,
	"payment_intent.canceled":       OutcomeCanceled,
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	Currency                  string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration

	// APIURL overrides the Stripe API base URL; empty uses the live endpoint.
	APIURL string
}

type StripeProvider struct {
	cfg StripeConfig
	api *client.API
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "rub"
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if url := strings.TrimSpace(cfg.APIURL); url != "" {
		backendConfig.URL = stripe.String(url)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackendsWithConfig(backendConfig))

	return &StripeProvider{cfg: cfg, api: api}
}

func (p *StripeProvider) Code() string {
	return entity.ProviderStripe
}

// CreatePayment opens a manually confirmed PaymentIntent; credits map to major currency units.
func (p *StripeProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCredits * 100),
		Currency:           stripe.String(strings.ToLower(p.cfg.Currency)),
		ConfirmationMethod: stripe.String(string(stripe.PaymentIntentConfirmationMethodManual)),
	}
	params.Context = ctx
	if input.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(input.PaymentMethodID)
	}
	for k, v := range correlationMetadata(input) {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(input.IdempotencyKey)

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}

	result := &CreateOutput{ProviderPaymentID: intent.ID}
	if intent.ClientSecret != "" {
		secret := intent.ClientSecret
		result.ClientSecret = &secret
	}

	return result, nil
}

func (p *StripeProvider) CancelPayment(ctx context.Context, providerPaymentID, idempotencyKey string) error {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey("cancel:" + idempotencyKey)
	}

	if _, err := p.api.PaymentIntents.Cancel(providerPaymentID, params); err != nil {
		return fmt.Errorf("stripe cancel payment intent: %w", err)
	}
	return nil
}

func (p *StripeProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("stripe webhook: %w", ErrNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                time.Duration(p.cfg.SignatureToleranceSeconds) * time.Second,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isStripeSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
	}

	eventType := string(event.Type)
	result := &WebhookEvent{
		EventID:   event.ID,
		EventType: eventType,
		Outcome:   OutcomeUnhandled,
	}

	outcome, ok := stripeOutcomes[eventType]
	if !ok {
		return result, nil
	}
	result.Outcome = outcome

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing data object", ErrMalformedPayload)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	result.ProviderPaymentID = intent.ID
	result.TransactionID = strings.TrimSpace(intent.Metadata[MetadataTransactionID])

	switch outcome {
	case OutcomeFailed:
		result.FailureCode = "payment_failed"
		if intent.LastPaymentError != nil {
			if intent.LastPaymentError.Code != "" {
				result.FailureCode = string(intent.LastPaymentError.Code)
			}
			result.FailureMessage = intent.LastPaymentError.Msg
		}
	case OutcomeCanceled:
		result.FailureCode = "canceled"
		if intent.CancellationReason != "" {
			result.FailureMessage = string(intent.CancellationReason)
		}
	}

	return result, nil
}

func isStripeSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
