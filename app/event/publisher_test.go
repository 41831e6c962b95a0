package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func completedTransaction() *entity.PaymentTransaction {
	return &entity.PaymentTransaction{
		ID:                "tx-1",
		WalletID:          "wallet-1",
		UserID:            "user-1",
		Provider:          entity.ProviderMock,
		Status:            entity.TransactionStatusCompleted,
		AmountCredits:     1000,
		CommissionCredits: 70,
	}
}

func TestNewTransactionEvent(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	evt := NewTransactionEvent(completedTransaction(), at)
	require.Equal(t, TypeTransactionCompleted, evt.EventType)
	require.Equal(t, int64(930), evt.AmountCredited)
	require.NotEmpty(t, evt.EventID)

	failed := completedTransaction()
	failed.Status = entity.TransactionStatusFailed
	code := "card_declined"
	failed.ErrorCode = &code
	evt = NewTransactionEvent(failed, at)
	require.Equal(t, TypeTransactionFailed, evt.EventType)
	require.Equal(t, int64(0), evt.AmountCredited)
	require.Equal(t, "card_declined", evt.ErrorCode)
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	writer := &captureWriter{}
	publisher := &KafkaPublisher{logger: logger, writer: writer, topic: "payments.transactions"}

	evt := NewTransactionEvent(completedTransaction(), time.Now())
	require.NoError(t, publisher.PublishTransaction(context.Background(), evt))
	require.Len(t, writer.messages, 1)
	require.Equal(t, "tx-1", string(writer.messages[0].Key))

	var decoded TransactionEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	require.Equal(t, "tx-1", decoded.TransactionID)
	require.Equal(t, TypeTransactionCompleted, decoded.EventType)
}

func TestKafkaPublisherReturnsWriterError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	writer := &captureWriter{err: errors.New("broker unavailable")}
	publisher := &KafkaPublisher{logger: logger, writer: writer, topic: "payments.transactions"}

	err := publisher.PublishTransaction(context.Background(), NewTransactionEvent(completedTransaction(), time.Now()))
	require.Error(t, err)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestLoggingPublisher(t *testing.T) {
	logger, hook := test.NewNullLogger()
	publisher := NewLoggingPublisher(logger)
	require.NoError(t, publisher.PublishTransaction(context.Background(), NewTransactionEvent(completedTransaction(), time.Now())))
	require.Equal(t, "tx-1", hook.LastEntry().Data["transaction_id"])
	require.NoError(t, publisher.Close())
}
