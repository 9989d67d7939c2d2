package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/charge"
	"github.com/stripe/stripe-go/v76/refund"
)

const msgAlreadyProcessed = "This payment has already been processed."

// StripeAPI is the slice of the Stripe API the providers use.
type StripeAPI interface {
	NewCharge(params *stripe.ChargeParams) (*stripe.Charge, error)
	GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
	CaptureCharge(id string, params *stripe.ChargeCaptureParams) (*stripe.Charge, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClient struct {
	charges charge.Client
	refunds refund.Client
}

// NewStripeClient talks to the live Stripe API with secretKey.
func NewStripeClient(secretKey string) StripeAPI {
	b := stripe.GetBackend(stripe.APIBackend)
	return &stripeClient{
		charges: charge.Client{B: b, Key: secretKey},
		refunds: refund.Client{B: b, Key: secretKey},
	}
}

func (c *stripeClient) NewCharge(params *stripe.ChargeParams) (*stripe.Charge, error) {
	return c.charges.New(params)
}

func (c *stripeClient) GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	return c.charges.Get(id, params)
}

func (c *stripeClient) CaptureCharge(id string, params *stripe.ChargeCaptureParams) (*stripe.Charge, error) {
	return c.charges.Capture(id, params)
}

func (c *stripeClient) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return c.refunds.New(params)
}

type StripeConfig struct {
	// Name is the store name shown in the checkout dialog.
	Name      string
	SecretKey string
	PublicKey string
	Image     string
}

// StripeProvider renders the Stripe Checkout button. Checkout posts a
// stripeToken back to the form URL, which is then charged.
type StripeProvider struct {
	BasicProvider
	cfg StripeConfig
	api StripeAPI
}

// NewStripeProvider uses api when given, otherwise the live Stripe API.
func NewStripeProvider(b BasicProvider, cfg StripeConfig, api StripeAPI) *StripeProvider {
	if api == nil {
		api = NewStripeClient(cfg.SecretKey)
	}
	return &StripeProvider{BasicProvider: b, cfg: cfg, api: api}
}

var checkoutTemplate = template.Must(template.New("checkout").Parse(
	`<script class="stripe-button" data-amount="{{.Amount}}" data-currency="{{.Currency}}" data-description="{{.Description}}" data-image="{{.Image}}" data-key="{{.Key}}" data-name="{{.Name}}" src="https://checkout.stripe.com/checkout.js"></script>`))

func (s *StripeProvider) widget(p *Payment) (template.HTML, error) {
	var buf bytes.Buffer
	err := checkoutTemplate.Execute(&buf, map[string]any{
		"Amount":      MinorUnits(p.Total),
		"Currency":    p.Currency,
		"Description": p.Description,
		"Image":       s.cfg.Image,
		"Key":         s.cfg.PublicKey,
		"Name":        s.cfg.Name,
	})
	if err != nil {
		return "", fmt.Errorf("render checkout widget: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func (s *StripeProvider) Form(ctx context.Context, p *Payment, data url.Values) (*Form, error) {
	form := NewForm(s.URLs.FormURL(p), data)
	w, err := s.widget(p)
	if err != nil {
		return nil, err
	}
	form.Widget = w
	form.SubmitLabel = ""
	return chargeForm(ctx, s.BasicProvider, s.api, p, form)
}

func (s *StripeProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	return stripeProcessData(w, r, s.BasicProvider, p)
}

func (s *StripeProvider) Capture(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return stripeCapture(ctx, s.api, p, amount)
}

func (s *StripeProvider) Release(ctx context.Context, p *Payment) error {
	return stripeRelease(ctx, s.api, p)
}

func (s *StripeProvider) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return stripeRefund(ctx, s.api, p, amount)
}

// chargeForm handles a bound form: it charges the submitted stripeToken and
// records the outcome on the payment.
func chargeForm(ctx context.Context, b BasicProvider, api StripeAPI, p *Payment, form *Form) (*Form, error) {
	if p.Status == StatusWaiting {
		if err := b.Recorder.ChangeStatus(ctx, p, StatusInput, ""); err != nil {
			return nil, err
		}
	}
	if !form.Bound() {
		return form, nil
	}

	token := strings.TrimSpace(form.Data.Get("stripeToken"))
	if token == "" {
		if err := b.Recorder.ChangeStatus(ctx, p, StatusRejected, ""); err != nil {
			return nil, err
		}
		return nil, &RedirectNeeded{URL: b.URLs.FailureURL(p)}
	}

	if p.TransactionID != "" {
		form.AddError(msgAlreadyProcessed)
		return form, nil
	}

	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(MinorUnits(p.Total)),
		Currency:    stripe.String(strings.ToLower(p.Currency)),
		Description: stripe.String(p.Description),
		Capture:     stripe.Bool(b.AutoCapture),
	}
	params.Context = ctx
	if err := params.SetSource(token); err != nil {
		return nil, fmt.Errorf("stripe source: %w", err)
	}

	ch, err := api.NewCharge(params)
	if err != nil {
		var serr *stripe.Error
		if !errors.As(err, &serr) {
			return nil, fmt.Errorf("stripe charge: %w", err)
		}
		if serr.Type == stripe.ErrorTypeCard && serr.ChargeID != "" {
			if err := checkStripeFraud(ctx, b, api, p, serr.ChargeID); err != nil {
				return nil, err
			}
		}
		form.AddError(serr.Msg)
		if err := b.Recorder.ChangeStatus(ctx, p, StatusError, serr.Msg); err != nil {
			return nil, err
		}
		return form, nil
	}

	p.TransactionID = ch.ID
	if raw, err := json.Marshal(ch); err != nil {
		b.logger().Warnw("encode stripe charge", "payment_id", p.ID, "error", err.Error())
	} else if err := p.Attrs().Set("charge", string(raw)); err != nil {
		b.logger().Warnw("store stripe charge", "payment_id", p.ID, "error", err.Error())
	}

	if b.AutoCapture {
		p.CapturedAmount = p.Total
		if err := b.Recorder.ChangeStatus(ctx, p, StatusConfirmed, ""); err != nil {
			return nil, err
		}
	} else if err := b.Recorder.ChangeStatus(ctx, p, StatusPreauth, ""); err != nil {
		return nil, err
	}
	return nil, &RedirectNeeded{URL: b.URLs.SuccessURL(p)}
}

func checkStripeFraud(ctx context.Context, b BasicProvider, api StripeAPI, p *Payment, chargeID string) error {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := api.GetCharge(chargeID, params)
	if err != nil {
		return fmt.Errorf("stripe retrieve charge %s: %w", chargeID, err)
	}
	if ch.FraudDetails != nil && ch.FraudDetails.StripeReport == stripe.ChargeFraudStripeReportFraudulent {
		return b.Recorder.ChangeFraudStatus(ctx, p, FraudReject, "", true)
	}
	return nil
}

// Checkout never calls back on its own; anyone landing here is sent to the
// page matching the payment's state.
func stripeProcessData(w http.ResponseWriter, r *http.Request, b BasicProvider, p *Payment) error {
	switch p.Status {
	case StatusConfirmed, StatusPreauth:
		return redirect(w, r, b.URLs.SuccessURL(p))
	case StatusWaiting, StatusInput:
		return redirect(w, r, b.URLs.FormURL(p))
	}
	return redirect(w, r, b.URLs.FailureURL(p))
}

func stripeCapture(ctx context.Context, api StripeAPI, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amountOrTotal(p, amount)
	params := &stripe.ChargeCaptureParams{Amount: stripe.Int64(MinorUnits(amount))}
	params.Context = ctx
	ch, err := api.CaptureCharge(p.TransactionID, params)
	if err != nil {
		return decimal.Zero, &PaymentError{Message: "capture failed", GatewayMessage: err.Error()}
	}
	if ch.AmountCaptured > 0 {
		return decimal.New(ch.AmountCaptured, -2), nil
	}
	return amount, nil
}

// An uncaptured charge is released by refunding it.
func stripeRelease(ctx context.Context, api StripeAPI, p *Payment) error {
	params := &stripe.RefundParams{Charge: stripe.String(p.TransactionID)}
	params.Context = ctx
	if _, err := api.NewRefund(params); err != nil {
		return &PaymentError{Message: "release failed", GatewayMessage: err.Error()}
	}
	return nil
}

func stripeRefund(ctx context.Context, api StripeAPI, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amountOrTotal(p, amount)
	params := &stripe.RefundParams{
		Charge: stripe.String(p.TransactionID),
		Amount: stripe.Int64(MinorUnits(amount)),
	}
	params.Context = ctx
	rf, err := api.NewRefund(params)
	if err != nil {
		return decimal.Zero, &PaymentError{Message: "refund failed", GatewayMessage: err.Error()}
	}
	if rf.Amount > 0 {
		return decimal.New(rf.Amount, -2), nil
	}
	return amount, nil
}
