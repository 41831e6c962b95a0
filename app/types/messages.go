package types

// Wire messages shared by the HTTP API (JSON) and the gRPC service (protobuf, see messages_wire.go).

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status"`
}

func (r *HealthResponse) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RateLimitErrorResponse struct {
	Error   string `json:"error"`
	ResetAt string `json:"resetAt"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type CreatePaymentRequest struct {
	// UserId is only honoured on the internal gRPC surface; HTTP callers are identified by their token.
	UserId          string `json:"userId,omitempty"`
	WalletId        string `json:"walletId" validate:"required,max=64"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	PaymentMethodId string `json:"paymentMethodId,omitempty" validate:"max=255"`
	IdempotencyKey  string `json:"idempotencyKey" validate:"required,max=255"`
	Provider        string `json:"provider,omitempty" validate:"omitempty,oneof=stripe yookassa mock"`
	TransactionType string `json:"transactionType,omitempty" validate:"omitempty,oneof=topup order_payment"`
}

func (r *CreatePaymentRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *CreatePaymentRequest) GetWalletId() string {
	if r == nil {
		return ""
	}
	return r.WalletId
}

func (r *CreatePaymentRequest) GetAmount() int64 {
	if r == nil {
		return 0
	}
	return r.Amount
}

func (r *CreatePaymentRequest) GetPaymentMethodId() string {
	if r == nil {
		return ""
	}
	return r.PaymentMethodId
}

func (r *CreatePaymentRequest) GetIdempotencyKey() string {
	if r == nil {
		return ""
	}
	return r.IdempotencyKey
}

func (r *CreatePaymentRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *CreatePaymentRequest) GetTransactionType() string {
	if r == nil {
		return ""
	}
	return r.TransactionType
}

type CreatePaymentResponse struct {
	Success                 bool    `json:"success"`
	TransactionId           string  `json:"transactionId"`
	Amount                  int64   `json:"amount"`
	Commission              int64   `json:"commission"`
	AmountCredited          int64   `json:"amountCredited"`
	Provider                string  `json:"provider"`
	ClientSecret            *string `json:"clientSecret"`
	ConfirmationUrl         *string `json:"confirmationUrl"`
	ProviderPaymentIntentId *string `json:"providerPaymentIntentId"`
	Status                  string  `json:"status"`
	Message                 string  `json:"message,omitempty"`
}

type GetTransactionRequest struct {
	Id string `json:"id" validate:"required,uuid"`
}

func (r *GetTransactionRequest) GetId() string {
	if r == nil {
		return ""
	}
	return r.Id
}

type ListTransactionsRequest struct {
	UserId   string `json:"userId,omitempty"`
	WalletId string `json:"walletId,omitempty"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=pending completed failed"`
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=stripe yookassa mock"`
	Limit    int32  `json:"limit,omitempty" validate:"gte=1,lte=500"`
	Offset   int32  `json:"offset,omitempty" validate:"gte=0"`
}

func (r *ListTransactionsRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *ListTransactionsRequest) GetWalletId() string {
	if r == nil {
		return ""
	}
	return r.WalletId
}

func (r *ListTransactionsRequest) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}

func (r *ListTransactionsRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *ListTransactionsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListTransactionsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

type Transaction struct {
	Id                      string  `json:"id"`
	WalletId                string  `json:"walletId"`
	UserId                  string  `json:"userId"`
	Amount                  int64   `json:"amount"`
	Commission              int64   `json:"commission"`
	CommissionPercent       string  `json:"commissionPercent"`
	AmountCredited          int64   `json:"amountCredited"`
	TransactionType         string  `json:"transactionType"`
	Provider                string  `json:"provider"`
	ProviderPaymentIntentId *string `json:"providerPaymentIntentId"`
	PaymentMethodId         *string `json:"paymentMethodId"`
	Status                  string  `json:"status"`
	ErrorCode               *string `json:"errorCode,omitempty"`
	ErrorMessage            *string `json:"errorMessage,omitempty"`
	ClientSecret            *string `json:"clientSecret,omitempty"`
	ConfirmationUrl         *string `json:"confirmationUrl,omitempty"`
	CreatedAt               string  `json:"createdAt"`
	UpdatedAt               string  `json:"updatedAt"`
	CompletedAt             *string `json:"completedAt"`
}

type TransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
}

func (r *TransactionResponse) GetTransaction() *Transaction {
	if r == nil {
		return nil
	}
	return r.Transaction
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

func (r *ListTransactionsResponse) GetTransactions() []*Transaction {
	if r == nil {
		return nil
	}
	return r.Transactions
}
