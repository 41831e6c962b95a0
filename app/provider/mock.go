package provider

import (
	"context"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

// MockProvider settles instantly for environments without live credentials.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Code() string {
	return entity.ProviderMock
}

func (p *MockProvider) CreatePayment(_ context.Context, input *CreateInput) (*CreateOutput, error) {
	return &CreateOutput{
		ProviderPaymentID: "mock_" + input.TransactionID,
		Completed:         true,
	}, nil
}

func (p *MockProvider) CancelPayment(context.Context, string, string) error {
	return nil
}

func (p *MockProvider) VerifyAndParseWebhook(context.Context, []byte, string) (*WebhookEvent, error) {
	return nil, ErrWebhookNotSupported
}
