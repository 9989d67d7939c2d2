package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paykit/internal/payments"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const StatusTopic = "payment.status.changed"

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type StatusChanged struct {
	PaymentID      int64           `json:"payment_id"`
	Token          string          `json:"token"`
	Variant        string          `json:"variant"`
	Status         string          `json:"status"`
	FraudStatus    string          `json:"fraud_status"`
	Currency       string          `json:"currency"`
	Total          decimal.Decimal `json:"total"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	Message        string          `json:"message,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Publisher sends a StatusChanged event for every payment status change,
// keyed by payment id so one payment's events stay ordered.
type Publisher struct {
	w   Writer
	now func() time.Time
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w, now: time.Now}
}

// NewKafkaWriter builds a writer for a comma separated broker list.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// PaymentStatusChanged is a payments.StatusHandler.
func (p *Publisher) PaymentStatusChanged(ctx context.Context, pay *payments.Payment) error {
	event := StatusChanged{
		PaymentID:      pay.ID,
		Token:          pay.Token,
		Variant:        pay.Variant,
		Status:         string(pay.Status),
		FraudStatus:    string(pay.FraudStatus),
		Currency:       pay.Currency,
		Total:          pay.Total,
		CapturedAmount: pay.CapturedAmount,
		Message:        pay.Message,
		Timestamp:      p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(pay.ID, 10)),
		Value: value,
	}); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}
