package payments

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

var testURLs = URLs{
	Base:    "https://shop.example",
	Success: "https://shop.example/checkout/{token}/success",
	Failure: "https://shop.example/checkout/{token}/failure",
}

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(ServiceConfig{Store: store})
	return svc, store
}

func basicFor(svc *Service, autoCapture bool) BasicProvider {
	return BasicProvider{AutoCapture: autoCapture, Recorder: svc, URLs: testURLs}
}

// newTestPayment stores a 100.00 USD payment for variant.
func newTestPayment(t *testing.T, svc *Service, variant string) *Payment {
	t.Helper()
	p := NewPayment(variant, "USD", decimal.RequireFromString("100.00"))
	p.Description = "payment"
	p.BillingEmail = "john@example.com"
	p.Billing = BillingAddress{FirstName: "John", LastName: "Smith"}
	require.NoError(t, svc.Save(context.Background(), p))
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type providerMock struct{ mock.Mock }

func (m *providerMock) Form(ctx context.Context, p *Payment, data url.Values) (*Form, error) {
	args := m.Called(ctx, p, data)
	f, _ := args.Get(0).(*Form)
	return f, args.Error(1)
}

func (m *providerMock) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	args := m.Called(w, r, p)
	return args.Error(0)
}

func (m *providerMock) Capture(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, p, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *providerMock) Release(ctx context.Context, p *Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *providerMock) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, p, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type stripeAPIMock struct{ mock.Mock }

func (m *stripeAPIMock) NewCharge(params *stripe.ChargeParams) (*stripe.Charge, error) {
	args := m.Called(params)
	ch, _ := args.Get(0).(*stripe.Charge)
	return ch, args.Error(1)
}

func (m *stripeAPIMock) GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	args := m.Called(id, params)
	ch, _ := args.Get(0).(*stripe.Charge)
	return ch, args.Error(1)
}

func (m *stripeAPIMock) CaptureCharge(id string, params *stripe.ChargeCaptureParams) (*stripe.Charge, error) {
	args := m.Called(id, params)
	ch, _ := args.Get(0).(*stripe.Charge)
	return ch, args.Error(1)
}

func (m *stripeAPIMock) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	args := m.Called(params)
	rf, _ := args.Get(0).(*stripe.Refund)
	return rf, args.Error(1)
}

type lockerMock struct{ mock.Mock }

func (m *lockerMock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	release, _ := args.Get(0).(func())
	return release, args.Error(1)
}

type logsMock struct{ mock.Mock }

func (m *logsMock) InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error {
	args := m.Called(ctx, paymentID, logType, payload)
	return args.Error(0)
}
