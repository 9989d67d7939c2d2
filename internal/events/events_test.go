package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"paykit/internal/payments"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type writerMock struct{ mock.Mock }

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func TestPublisher_PaymentStatusChanged(t *testing.T) {
	w := new(writerMock)
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	pub := NewPublisher(w)
	pub.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }

	p := payments.NewPayment("stripe", "EUR", decimal.RequireFromString("12.50"))
	p.ID = 9
	p.Token = "tok-9"
	p.Status = payments.StatusConfirmed
	p.CapturedAmount = p.Total

	require.NoError(t, pub.PaymentStatusChanged(context.Background(), p))
	require.Len(t, sent, 1)
	require.Equal(t, "9", string(sent[0].Key))

	var got StatusChanged
	require.NoError(t, json.Unmarshal(sent[0].Value, &got))
	require.Equal(t, "confirmed", got.Status)
	require.Equal(t, "tok-9", got.Token)
	require.True(t, got.CapturedAmount.Equal(decimal.RequireFromString("12.5")))
}

func TestPublisher_WriteError(t *testing.T) {
	w := new(writerMock)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	err := NewPublisher(w).PaymentStatusChanged(context.Background(), &payments.Payment{ID: 1})
	require.ErrorContains(t, err, "publish status event")
}
