package types

// Protobuf encodings of the gRPC messages. Field numbers follow proto/payments.proto.

func (r *HealthRequest) appendWire(b []byte) []byte {
	return b
}

func (r *HealthRequest) decodeField(f *wireField) {
	f.skip()
}

func (r *HealthResponse) appendWire(b []byte) []byte {
	return appendString(b, 1, r.Status)
}

func (r *HealthResponse) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.Status = f.stringValue()
	default:
		f.skip()
	}
}

func (r *CreatePaymentRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.UserId)
	b = appendString(b, 2, r.WalletId)
	b = appendInt64(b, 3, r.Amount)
	b = appendString(b, 4, r.PaymentMethodId)
	b = appendString(b, 5, r.IdempotencyKey)
	b = appendString(b, 6, r.Provider)
	return appendString(b, 7, r.TransactionType)
}

func (r *CreatePaymentRequest) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.UserId = f.stringValue()
	case 2:
		r.WalletId = f.stringValue()
	case 3:
		r.Amount = f.int64Value()
	case 4:
		r.PaymentMethodId = f.stringValue()
	case 5:
		r.IdempotencyKey = f.stringValue()
	case 6:
		r.Provider = f.stringValue()
	case 7:
		r.TransactionType = f.stringValue()
	default:
		f.skip()
	}
}

func (r *CreatePaymentResponse) appendWire(b []byte) []byte {
	b = appendBool(b, 1, r.Success)
	b = appendString(b, 2, r.TransactionId)
	b = appendInt64(b, 3, r.Amount)
	b = appendInt64(b, 4, r.Commission)
	b = appendInt64(b, 5, r.AmountCredited)
	b = appendString(b, 6, r.Provider)
	b = appendOptionalString(b, 7, r.ClientSecret)
	b = appendOptionalString(b, 8, r.ConfirmationUrl)
	b = appendOptionalString(b, 9, r.ProviderPaymentIntentId)
	b = appendString(b, 10, r.Status)
	return appendString(b, 11, r.Message)
}

func (r *CreatePaymentResponse) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.Success = f.boolValue()
	case 2:
		r.TransactionId = f.stringValue()
	case 3:
		r.Amount = f.int64Value()
	case 4:
		r.Commission = f.int64Value()
	case 5:
		r.AmountCredited = f.int64Value()
	case 6:
		r.Provider = f.stringValue()
	case 7:
		r.ClientSecret = f.optionalStringValue()
	case 8:
		r.ConfirmationUrl = f.optionalStringValue()
	case 9:
		r.ProviderPaymentIntentId = f.optionalStringValue()
	case 10:
		r.Status = f.stringValue()
	case 11:
		r.Message = f.stringValue()
	default:
		f.skip()
	}
}

func (r *GetTransactionRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, r.Id)
}

func (r *GetTransactionRequest) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.Id = f.stringValue()
	default:
		f.skip()
	}
}

func (r *ListTransactionsRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.UserId)
	b = appendString(b, 2, r.WalletId)
	b = appendString(b, 3, r.Status)
	b = appendString(b, 4, r.Provider)
	b = appendInt32(b, 5, r.Limit)
	return appendInt32(b, 6, r.Offset)
}

func (r *ListTransactionsRequest) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.UserId = f.stringValue()
	case 2:
		r.WalletId = f.stringValue()
	case 3:
		r.Status = f.stringValue()
	case 4:
		r.Provider = f.stringValue()
	case 5:
		r.Limit = f.int32Value()
	case 6:
		r.Offset = f.int32Value()
	default:
		f.skip()
	}
}

func (t *Transaction) appendWire(b []byte) []byte {
	b = appendString(b, 1, t.Id)
	b = appendString(b, 2, t.WalletId)
	b = appendString(b, 3, t.UserId)
	b = appendInt64(b, 4, t.Amount)
	b = appendInt64(b, 5, t.Commission)
	b = appendString(b, 6, t.CommissionPercent)
	b = appendInt64(b, 7, t.AmountCredited)
	b = appendString(b, 8, t.TransactionType)
	b = appendString(b, 9, t.Provider)
	b = appendOptionalString(b, 10, t.ProviderPaymentIntentId)
	b = appendOptionalString(b, 11, t.PaymentMethodId)
	b = appendString(b, 12, t.Status)
	b = appendOptionalString(b, 13, t.ErrorCode)
	b = appendOptionalString(b, 14, t.ErrorMessage)
	b = appendOptionalString(b, 15, t.ClientSecret)
	b = appendOptionalString(b, 16, t.ConfirmationUrl)
	b = appendString(b, 17, t.CreatedAt)
	b = appendString(b, 18, t.UpdatedAt)
	return appendOptionalString(b, 19, t.CompletedAt)
}

func (t *Transaction) decodeField(f *wireField) {
	switch f.num {
	case 1:
		t.Id = f.stringValue()
	case 2:
		t.WalletId = f.stringValue()
	case 3:
		t.UserId = f.stringValue()
	case 4:
		t.Amount = f.int64Value()
	case 5:
		t.Commission = f.int64Value()
	case 6:
		t.CommissionPercent = f.stringValue()
	case 7:
		t.AmountCredited = f.int64Value()
	case 8:
		t.TransactionType = f.stringValue()
	case 9:
		t.Provider = f.stringValue()
	case 10:
		t.ProviderPaymentIntentId = f.optionalStringValue()
	case 11:
		t.PaymentMethodId = f.optionalStringValue()
	case 12:
		t.Status = f.stringValue()
	case 13:
		t.ErrorCode = f.optionalStringValue()
	case 14:
		t.ErrorMessage = f.optionalStringValue()
	case 15:
		t.ClientSecret = f.optionalStringValue()
	case 16:
		t.ConfirmationUrl = f.optionalStringValue()
	case 17:
		t.CreatedAt = f.stringValue()
	case 18:
		t.UpdatedAt = f.stringValue()
	case 19:
		t.CompletedAt = f.optionalStringValue()
	default:
		f.skip()
	}
}

func (r *TransactionResponse) appendWire(b []byte) []byte {
	if r.Transaction == nil {
		return b
	}
	return appendMessage(b, 1, r.Transaction)
}

func (r *TransactionResponse) decodeField(f *wireField) {
	switch f.num {
	case 1:
		r.Transaction = new(Transaction)
		f.message(r.Transaction)
	default:
		f.skip()
	}
}

func (r *ListTransactionsResponse) appendWire(b []byte) []byte {
	for _, t := range r.Transactions {
		if t == nil {
			t = &Transaction{}
		}
		b = appendMessage(b, 1, t)
	}
	return b
}

func (r *ListTransactionsResponse) decodeField(f *wireField) {
	switch f.num {
	case 1:
		t := new(Transaction)
		f.message(t)
		r.Transactions = append(r.Transactions, t)
	default:
		f.skip()
	}
}
