package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// DummyProvider lets whoever fills in the form pick the outcome. It talks to
// no gateway and is meant for development and tests.
type DummyProvider struct {
	BasicProvider
}

func NewDummyProvider(b BasicProvider) *DummyProvider {
	return &DummyProvider{BasicProvider: b}
}

var dummyStatuses = []string{
	string(StatusPreauth), string(StatusConfirmed), string(StatusRejected), string(StatusError),
}

var dummyFraudStatuses = []string{
	string(FraudUnknown), string(FraudAccept), string(FraudReject), string(FraudReview),
}

func (d *DummyProvider) Form(ctx context.Context, p *Payment, data url.Values) (*Form, error) {
	if p.Status == StatusWaiting {
		if err := d.Recorder.ChangeStatus(ctx, p, StatusInput, ""); err != nil {
			return nil, err
		}
	}

	form := NewForm(d.ReturnURL(p), data)
	form.AddField(Field{Name: "status", Label: "Status", Type: "select", Choices: dummyStatuses, Value: string(StatusConfirmed)})
	form.AddField(Field{Name: "fraud_status", Label: "Fraud status", Type: "select", Choices: dummyFraudStatuses, Value: string(FraudUnknown)})

	if !form.Bound() {
		return form, nil
	}

	status, fraud, err := d.parse(data)
	if err != nil {
		form.AddError(err.Error())
		return form, nil
	}
	target, err := d.apply(ctx, p, status, fraud)
	if err != nil {
		return nil, err
	}
	return nil, &RedirectNeeded{URL: target}
}

func (d *DummyProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return nil
	}
	status, fraud, err := d.parse(r.Form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	target, err := d.apply(r.Context(), p, status, fraud)
	if err != nil {
		return err
	}
	return redirect(w, r, target)
}

func (d *DummyProvider) parse(data url.Values) (Status, FraudStatus, error) {
	status := Status(data.Get("status"))
	if status == "" {
		status = StatusConfirmed
	}
	if !status.Valid() {
		return "", "", fmt.Errorf("unknown status %q", status)
	}
	fraud := FraudStatus(data.Get("fraud_status"))
	if fraud == "" {
		fraud = FraudUnknown
	}
	if !fraud.Valid() {
		return "", "", fmt.Errorf("unknown fraud status %q", fraud)
	}
	return status, fraud, nil
}

func (d *DummyProvider) apply(ctx context.Context, p *Payment, status Status, fraud FraudStatus) (string, error) {
	if err := d.Recorder.ChangeFraudStatus(ctx, p, fraud, "", false); err != nil {
		return "", err
	}
	if status == StatusConfirmed {
		p.CapturedAmount = p.Total
	}
	if err := d.Recorder.ChangeStatus(ctx, p, status, ""); err != nil {
		return "", err
	}
	switch status {
	case StatusConfirmed, StatusPreauth:
		return d.URLs.SuccessURL(p), nil
	case StatusRejected:
		return d.URLs.RejectionURL(p), nil
	}
	return d.URLs.FailureURL(p), nil
}

func (d *DummyProvider) Capture(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}

func (d *DummyProvider) Release(context.Context, *Payment) error {
	return nil
}

func (d *DummyProvider) Refund(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}
