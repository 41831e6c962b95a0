package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

// waiting_for_capture never settles anything because payments are created with capture=true.
var yookassaOutcomes = map[string]string{
	"payment.succeeded": OutcomeSucceeded,
	"payment.canceled":  OutcomeCanceled,
}

type YooKassaConfig struct {
	ShopID        string
	SecretKey     string
	WebhookSecret string
	ReturnURL     string
	Currency      string
	APIURL        string
	HTTPTimeout   time.Duration
}

type YooKassaProvider struct {
	cfg    YooKassaConfig
	client *http.Client
}

func NewYooKassaProvider(cfg YooKassaConfig) *YooKassaProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = "https://api.yookassa.ru"
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "RUB"
	}

	return &YooKassaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *YooKassaProvider) Code() string {
	return entity.ProviderYooKassa
}

type yookassaAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yookassaConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yookassaPayment struct {
	ID                  string                `json:"id"`
	Status              string                `json:"status"`
	Confirmation        *yookassaConfirmation `json:"confirmation,omitempty"`
	Metadata            map[string]string     `json:"metadata,omitempty"`
	CancellationDetails *struct {
		Party  string `json:"party"`
		Reason string `json:"reason"`
	} `json:"cancellation_details,omitempty"`
}

// CreatePayment opens a redirect payment with auto-capture; credits map to whole currency units.
func (p *YooKassaProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(p.cfg.ShopID) == "" || strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, fmt.Errorf("yookassa: %w", ErrNotConfigured)
	}

	request := map[string]interface{}{
		"amount": yookassaAmount{
			Value:    strconv.FormatInt(input.AmountCredits, 10) + ".00",
			Currency: strings.ToUpper(p.cfg.Currency),
		},
		"capture": true,
		"confirmation": yookassaConfirmation{
			Type:      "redirect",
			ReturnURL: p.cfg.ReturnURL,
		},
		"description": "Wallet payment " + input.TransactionID,
		"metadata":    correlationMetadata(input),
	}
	if input.PaymentMethodID != "" {
		request["payment_method_id"] = input.PaymentMethodID
	}

	body, err := p.postJSON(ctx, "/v3/payments", input.IdempotencyKey, request)
	if err != nil {
		return nil, err
	}

	var payment yookassaPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payment.ID) == "" {
		return nil, fmt.Errorf("yookassa payment id missing")
	}

	result := &CreateOutput{ProviderPaymentID: payment.ID}
	if payment.Confirmation != nil && payment.Confirmation.ConfirmationURL != "" {
		confirmationURL := payment.Confirmation.ConfirmationURL
		result.ConfirmationURL = &confirmationURL
	}

	return result, nil
}

func (p *YooKassaProvider) CancelPayment(ctx context.Context, providerPaymentID, idempotencyKey string) error {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil
	}
	if idempotencyKey != "" {
		idempotencyKey = "cancel:" + idempotencyKey
	}

	_, err := p.postJSON(ctx, "/v3/payments/"+url.PathEscape(providerPaymentID)+"/cancel", idempotencyKey, map[string]interface{}{})
	return err
}

// VerifyAndParseWebhook checks a hex HMAC-SHA256 of the raw body. Notifications carry no id
// of their own, so the event id is derived from the payment id and the event name.
func (p *YooKassaProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("yookassa webhook: %w", ErrNotConfigured)
	}
	if !verifyHMACSignature(payload, signature, p.cfg.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	var notification struct {
		Type   string          `json:"type"`
		Event  string          `json:"event"`
		Object yookassaPayment `json:"object"`
	}
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType := strings.TrimSpace(notification.Event)
	paymentID := strings.TrimSpace(notification.Object.ID)
	if eventType == "" || paymentID == "" {
		return nil, fmt.Errorf("%w: missing event or object id", ErrMalformedPayload)
	}

	result := &WebhookEvent{
		EventID:           paymentID + ":" + eventType,
		EventType:         eventType,
		Outcome:           OutcomeUnhandled,
		ProviderPaymentID: paymentID,
		TransactionID:     strings.TrimSpace(notification.Object.Metadata[MetadataTransactionID]),
	}

	if outcome, ok := yookassaOutcomes[eventType]; ok {
		result.Outcome = outcome
	}
	if result.Outcome == OutcomeCanceled {
		result.FailureCode = "canceled"
		if details := notification.Object.CancellationDetails; details != nil {
			if details.Reason != "" {
				result.FailureCode = details.Reason
			}
			result.FailureMessage = strings.TrimSpace(details.Party + " " + details.Reason)
		}
	}

	return result, nil
}

func (p *YooKassaProvider) postJSON(ctx context.Context, path, idempotencyKey string, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.APIURL, "/")+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.ShopID, p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotence-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("yookassa request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

func verifyHMACSignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	candidate, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(candidate, mac.Sum(nil))
}
