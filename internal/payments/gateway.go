package payments

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider defines a common interface for all payment gateways.
//
// Form returns the form to show the customer, or a *RedirectNeeded error when
// the customer has to go somewhere else. data is nil for the first render and
// holds the submitted values afterwards.
type Provider interface {
	Form(ctx context.Context, p *Payment, data url.Values) (*Form, error)
	ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error
	Capture(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	Release(ctx context.Context, p *Payment) error
	Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
}

// Recorder persists payment changes made by providers and fires the
// status-changed signal.
type Recorder interface {
	Save(ctx context.Context, p *Payment) error
	ChangeStatus(ctx context.Context, p *Payment, status Status, message string) error
	ChangeFraudStatus(ctx context.Context, p *Payment, status FraudStatus, message string, commit bool) error
}

// URLs builds the customer-facing links of a payment. Success, Failure and
// Rejection are templates in which "{token}" is replaced by the payment token.
type URLs struct {
	Base      string
	Success   string
	Failure   string
	Rejection string
}

func (u URLs) expand(tpl string, p *Payment) string {
	return strings.ReplaceAll(tpl, "{token}", url.PathEscape(p.Token))
}

// ProcessURL is where gateways send the customer (or their callbacks) back to.
func (u URLs) ProcessURL(p *Payment) string {
	return strings.TrimRight(u.Base, "/") + "/v1/payments/process/" + url.PathEscape(p.Token)
}

func (u URLs) FormURL(p *Payment) string {
	return strings.TrimRight(u.Base, "/") + "/v1/payments/" + url.PathEscape(p.Token) + "/form"
}

func (u URLs) SuccessURL(p *Payment) string { return u.expand(u.Success, p) }

func (u URLs) FailureURL(p *Payment) string { return u.expand(u.Failure, p) }

// ResultURL is where a customer goes once the gateway step is behind them.
func (u URLs) ResultURL(p *Payment) string {
	switch p.Status {
	case StatusPreauth, StatusConfirmed:
		return u.SuccessURL(p)
	case StatusRejected:
		return u.RejectionURL(p)
	}
	return u.FailureURL(p)
}

// RejectionURL falls back to the failure URL when no rejection page is set.
func (u URLs) RejectionURL(p *Payment) string {
	if u.Rejection == "" {
		return u.FailureURL(p)
	}
	return u.expand(u.Rejection, p)
}

// BasicProvider holds what every gateway adapter shares.
type BasicProvider struct {
	// AutoCapture charges immediately; otherwise payments stop at preauth.
	AutoCapture bool
	Recorder    Recorder
	URLs        URLs
	Logger      *zap.SugaredLogger
}

func (b BasicProvider) ReturnURL(p *Payment) string {
	return b.URLs.ProcessURL(p)
}

func (b BasicProvider) logger() *zap.SugaredLogger {
	if b.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return b.Logger
}

// redirect writes a 302 to target.
func redirect(w http.ResponseWriter, r *http.Request, target string) error {
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// amountOrTotal returns amount, or the payment total when amount is zero.
func amountOrTotal(p *Payment, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return p.Total
	}
	return amount
}
