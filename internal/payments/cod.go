package payments

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// CashOnDeliveryProvider is nearly a stub: money changes hands at the door
// and is confirmed manually.
type CashOnDeliveryProvider struct {
	BasicProvider
}

func NewCashOnDeliveryProvider(b BasicProvider) *CashOnDeliveryProvider {
	return &CashOnDeliveryProvider{BasicProvider: b}
}

func (c *CashOnDeliveryProvider) Form(ctx context.Context, p *Payment, _ url.Values) (*Form, error) {
	if p.ID == 0 {
		if err := c.Recorder.Save(ctx, p); err != nil {
			return nil, err
		}
	}
	return nil, &RedirectNeeded{URL: c.ReturnURL(p)}
}

func (c *CashOnDeliveryProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	if p.Status != StatusWaiting && p.Status != StatusInput {
		return redirect(w, r, c.URLs.ResultURL(p))
	}

	status := StatusPreauth
	if c.AutoCapture {
		status = StatusConfirmed
		p.CapturedAmount = p.Total
	}
	if err := c.Recorder.ChangeStatus(r.Context(), p, status, ""); err != nil {
		return err
	}
	return redirect(w, r, c.URLs.SuccessURL(p))
}

func (c *CashOnDeliveryProvider) Capture(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}

func (c *CashOnDeliveryProvider) Release(context.Context, *Payment) error {
	return nil
}

func (c *CashOnDeliveryProvider) Refund(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}
