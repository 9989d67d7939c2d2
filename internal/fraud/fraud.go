package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"paykit/internal/payments"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

const (
	Subject        = "fraud.check"
	defaultTimeout = 5 * time.Second
)

// Requester is the request/reply half of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type CheckRequest struct {
	PaymentID  int64           `json:"payment_id"`
	Variant    string          `json:"variant"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CustomerID string          `json:"customer_id"`
	IPAddress  string          `json:"ip_address,omitempty"`
}

type CheckResponse struct {
	Decision string `json:"decision"` // approve, deny, manual_review
	Reason   string `json:"reason"`
}

// Screener asks the fraud service about payments once the customer has paid
// or authorized, and records the verdict as the payment's fraud status.
type Screener struct {
	nc       Requester
	recorder payments.Recorder
	timeout  time.Duration
}

func NewScreener(nc Requester, recorder payments.Recorder) *Screener {
	return &Screener{nc: nc, recorder: recorder, timeout: defaultTimeout}
}

func (s *Screener) Check(ctx context.Context, p *payments.Payment) (payments.FraudStatus, string, error) {
	body, err := json.Marshal(CheckRequest{
		PaymentID:  p.ID,
		Variant:    p.Variant,
		Amount:     p.Total,
		Currency:   p.Currency,
		CustomerID: p.BillingEmail,
		IPAddress:  p.CustomerIPAddress,
	})
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(ctx, Subject, body)
	if err != nil {
		return "", "", fmt.Errorf("fraud check request: %w", err)
	}

	var resp CheckResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", "", fmt.Errorf("fraud check decode: %w", err)
	}

	switch resp.Decision {
	case "approve":
		return payments.FraudAccept, resp.Reason, nil
	case "deny":
		return payments.FraudReject, resp.Reason, nil
	case "manual_review":
		return payments.FraudReview, resp.Reason, nil
	}
	return "", "", fmt.Errorf("unknown fraud decision %q", resp.Decision)
}

// PaymentStatusChanged is a payments.StatusHandler. Only payments that still
// have no verdict and just reached preauth or confirmed are screened.
func (s *Screener) PaymentStatusChanged(ctx context.Context, p *payments.Payment) error {
	if p.FraudStatus != payments.FraudUnknown {
		return nil
	}
	if p.Status != payments.StatusPreauth && p.Status != payments.StatusConfirmed {
		return nil
	}
	status, reason, err := s.Check(ctx, p)
	if err != nil {
		return err
	}
	return s.recorder.ChangeFraudStatus(ctx, p, status, reason, true)
}
