package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/speps/go-hashids/v2"
)

// BankTransferProvider shows the customer where to wire the money in advance.
// The form is informational only; submitting it moves the payment to preauth
// until the transfer is confirmed by a capture.
type BankTransferProvider struct {
	BasicProvider
	IBAN   string
	BIC    string
	hashid *hashids.HashID
}

func NewBankTransferProvider(b BasicProvider, iban, bic, salt string) (*BankTransferProvider, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	hd.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("hashids: %w", err)
	}
	return &BankTransferProvider{
		BasicProvider: b,
		IBAN:          strings.ReplaceAll(iban, " ", ""),
		BIC:           bic,
		hashid:        h,
	}, nil
}

// Reference is the code the customer puts on the transfer.
func (b *BankTransferProvider) Reference(p *Payment) (string, error) {
	code, err := b.hashid.EncodeInt64([]int64{p.ID})
	if err != nil {
		return "", fmt.Errorf("encode reference: %w", err)
	}
	return "PAY-" + code, nil
}

// PaymentID maps a reference back to the payment id.
func (b *BankTransferProvider) PaymentID(reference string) (int64, error) {
	ids, err := b.hashid.DecodeInt64WithError(strings.TrimPrefix(reference, "PAY-"))
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("invalid reference %q", reference)
	}
	return ids[0], nil
}

func (b *BankTransferProvider) Form(ctx context.Context, p *Payment, _ url.Values) (*Form, error) {
	if p.ID == 0 {
		if err := b.Recorder.Save(ctx, p); err != nil {
			return nil, err
		}
	}
	ref, err := b.Reference(p)
	if err != nil {
		return nil, err
	}
	if p.TransactionID == "" {
		p.TransactionID = ref
		if err := b.Recorder.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	form := NewForm(b.ReturnURL(p), nil)
	form.AddField(Field{Name: "order", Label: "Order", Value: ref, ReadOnly: true})
	form.AddField(Field{Name: "iban", Label: "IBAN", Value: b.IBAN, ReadOnly: true})
	form.AddField(Field{Name: "bic", Label: "BIC", Value: b.BIC, ReadOnly: true})
	return form, nil
}

func (b *BankTransferProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	if p.Status == StatusWaiting || p.Status == StatusInput {
		if err := b.Recorder.ChangeStatus(r.Context(), p, StatusPreauth, "awaiting bank transfer"); err != nil {
			return err
		}
	}
	return redirect(w, r, b.URLs.SuccessURL(p))
}

func (b *BankTransferProvider) Capture(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}

func (b *BankTransferProvider) Release(context.Context, *Payment) error {
	return nil
}

// Refund is paid back by hand; nothing to call.
func (b *BankTransferProvider) Refund(_ context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return amountOrTotal(p, amount), nil
}
