package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/types"
)

const ReplayMessage = "Idempotent replay: returning existing transaction"

func CreatePaymentResultToResponse(result *service.CreatePaymentResult) *types.CreatePaymentResponse {
	if result == nil || result.Transaction == nil {
		return nil
	}

	item := result.Transaction
	resp := &types.CreatePaymentResponse{
		Success:                 true,
		TransactionId:           item.ID,
		Amount:                  item.AmountCredits,
		Commission:              item.CommissionCredits,
		AmountCredited:          item.AmountCredited(),
		Provider:                item.Provider,
		ClientSecret:            metadataValue(item.Metadata, entity.MetadataClientSecret),
		ConfirmationUrl:         metadataValue(item.Metadata, entity.MetadataConfirmationURL),
		ProviderPaymentIntentId: cloneString(item.ProviderPaymentIntentID),
		Status:                  item.Status,
	}
	if result.Replayed {
		resp.Message = ReplayMessage
	}
	return resp
}

func TransactionToResponse(item *entity.PaymentTransaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		Id:                      item.ID,
		WalletId:                item.WalletID,
		UserId:                  item.UserID,
		Amount:                  item.AmountCredits,
		Commission:              item.CommissionCredits,
		CommissionPercent:       item.CommissionPercent,
		AmountCredited:          item.AmountCredited(),
		TransactionType:         item.TransactionType,
		Provider:                item.Provider,
		ProviderPaymentIntentId: cloneString(item.ProviderPaymentIntentID),
		PaymentMethodId:         cloneString(item.PaymentMethodID),
		Status:                  item.Status,
		ErrorCode:               cloneString(item.ErrorCode),
		ErrorMessage:            cloneString(item.ErrorMessage),
		ClientSecret:            metadataValue(item.Metadata, entity.MetadataClientSecret),
		ConfirmationUrl:         metadataValue(item.Metadata, entity.MetadataConfirmationURL),
		CreatedAt:               item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:               item.UpdatedAt.UTC().Format(time.RFC3339),
		CompletedAt:             formatTime(item.CompletedAt),
	}
}

func TransactionsToResponse(items []*entity.PaymentTransaction) []*types.Transaction {
	result := make([]*types.Transaction, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToResponse(item))
	}
	return result
}

func metadataValue(metadata map[string]string, key string) *string {
	v, ok := metadata[key]
	if !ok || v == "" {
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

func formatTime(v *time.Time) *string {
	if v == nil {
		return nil
	}
	out := v.UTC().Format(time.RFC3339)
	return &out
}
