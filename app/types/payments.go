package types

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validationError turns the first failed rule into a client-facing message.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "gt", "gte":
		return fmt.Errorf("%s must be >= %s", fe.Field(), minBound(fe))
	case "lte", "max":
		return fmt.Errorf("%s must be <= %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func minBound(fe validator.FieldError) string {
	if fe.Tag() == "gt" {
		n, err := strconv.ParseInt(fe.Param(), 10, 64)
		if err == nil {
			return strconv.FormatInt(n+1, 10)
		}
	}
	return fe.Param()
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.WalletId = strings.TrimSpace(body.WalletId)
	body.PaymentMethodId = strings.TrimSpace(body.PaymentMethodId)
	body.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.TransactionType = strings.ToLower(strings.TrimSpace(body.TransactionType))
	// the caller identity comes from the bearer token
	body.UserId = ""

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

func NewGetTransactionRequestFromContext(ctx echo.Context) (*GetTransactionRequest, error) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		return nil, errors.New("transaction id is required")
	}
	return &GetTransactionRequest{Id: id}, nil
}

func (r *GetTransactionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

func NewListTransactionsRequestFromContext(ctx echo.Context) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		UserId:   strings.TrimSpace(ctx.QueryParam("user_id")),
		WalletId: strings.TrimSpace(ctx.QueryParam("wallet_id")),
		Status:   strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		Provider: strings.ToLower(strings.TrimSpace(ctx.QueryParam("provider"))),
		Limit:    100,
		Offset:   0,
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// HandleWebhookRequest keeps the body byte-exact; signatures are computed over the raw payload.
type HandleWebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

// MaxWebhookBodyBytes caps provider notification bodies; echo's BodyLimit uses WebhookBodyLimit.
const (
	MaxWebhookBodyBytes = 1 << 20
	WebhookBodyLimit    = "1M"
)

var ErrWebhookPayloadTooLarge = errors.New("webhook payload too large")

var webhookSignatureHeaders = map[string]string{
	"stripe":   "Stripe-Signature",
	"yookassa": "X-Yookassa-Signature",
}

func NewHandleWebhookRequestFromContext(ctx echo.Context, provider string) (*HandleWebhookRequest, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, MaxWebhookBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxWebhookBodyBytes {
		return nil, ErrWebhookPayloadTooLarge
	}

	signature := ""
	if header, ok := webhookSignatureHeaders[provider]; ok {
		signature = strings.TrimSpace(ctx.Request().Header.Get(header))
	}

	return &HandleWebhookRequest{
		Provider:  provider,
		Signature: signature,
		Payload:   payload,
	}, nil
}

func (r *HandleWebhookRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if len(strings.TrimSpace(string(r.Payload))) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
