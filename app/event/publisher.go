// Package event publishes terminal payment transitions to downstream consumers.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
)

const (
	TypeTransactionCompleted = "payment.transaction.completed"
	TypeTransactionFailed    = "payment.transaction.failed"
)

type TransactionEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	EventVersion   int       `json:"event_version"`
	OccurredAt     time.Time `json:"occurred_at"`
	TransactionID  string    `json:"transaction_id"`
	WalletID       string    `json:"wallet_id"`
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	Commission     int64     `json:"commission"`
	AmountCredited int64     `json:"amount_credited"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// NewTransactionEvent builds the message for a transaction that reached a terminal status.
func NewTransactionEvent(tx *entity.PaymentTransaction, occurredAt time.Time) TransactionEvent {
	eventType := TypeTransactionCompleted
	if tx.Status == entity.TransactionStatusFailed {
		eventType = TypeTransactionFailed
	}

	evt := TransactionEvent{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		EventVersion:   1,
		OccurredAt:     occurredAt.UTC(),
		TransactionID:  tx.ID,
		WalletID:       tx.WalletID,
		UserID:         tx.UserID,
		Provider:       tx.Provider,
		Status:         tx.Status,
		Amount:         tx.AmountCredits,
		Commission:     tx.CommissionCredits,
		AmountCredited: tx.AmountCredited(),
	}
	if tx.Status == entity.TransactionStatusFailed {
		evt.AmountCredited = 0
	}
	if tx.ErrorCode != nil {
		evt.ErrorCode = *tx.ErrorCode
	}
	if tx.ErrorMessage != nil {
		evt.ErrorMessage = *tx.ErrorMessage
	}
	return evt
}

type Publisher interface {
	PublishTransaction(ctx context.Context, evt TransactionEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	logger logrus.FieldLogger
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(logger logrus.FieldLogger, brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// PublishTransaction keys messages by transaction id so one transaction stays on one partition.
func (p *KafkaPublisher) PublishTransaction(ctx context.Context, evt TransactionEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(evt.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic":          p.topic,
			"transaction_id": evt.TransactionID,
		}).Error("Failed to publish transaction event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":          p.topic,
		"event_type":     evt.EventType,
		"transaction_id": evt.TransactionID,
	}).Info("Transaction event published")

	return nil
}

// LoggingPublisher stands in for Kafka when no brokers are configured.
type LoggingPublisher struct {
	logger logrus.FieldLogger
}

func NewLoggingPublisher(logger logrus.FieldLogger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) PublishTransaction(_ context.Context, evt TransactionEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event_type":      evt.EventType,
		"transaction_id":  evt.TransactionID,
		"wallet_id":       evt.WalletID,
		"amount_credited": evt.AmountCredited,
	}).Info("Transaction event (no broker configured)")
	return nil
}

func (p *LoggingPublisher) Close() error {
	return nil
}
