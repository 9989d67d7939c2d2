package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type KhaltiConfig struct {
	SecretKey    string
	WebsiteURL   string
	IsProduction bool
	// BaseURL overrides the Khalti host, e.g. for a local fake.
	BaseURL string
}

// KhaltiProvider redirects the customer to Khalti's hosted ePayment page and
// confirms the result with the lookup API when Khalti sends them back.
type KhaltiProvider struct {
	BasicProvider
	cfg        KhaltiConfig
	httpClient *http.Client
}

func NewKhaltiProvider(b BasicProvider, cfg KhaltiConfig, client *http.Client) *KhaltiProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &KhaltiProvider{BasicProvider: b, cfg: cfg, httpClient: client}
}

func (k *KhaltiProvider) baseURL() string {
	if k.cfg.BaseURL != "" {
		return strings.TrimRight(k.cfg.BaseURL, "/")
	}
	if k.cfg.IsProduction {
		return "https://khalti.com"
	}
	return "https://dev.khalti.com"
}

func (k *KhaltiProvider) initiateURL() string {
	return k.baseURL() + "/api/v2/epayment/initiate/"
}

func (k *KhaltiProvider) lookupURL() string {
	return k.baseURL() + "/api/v2/epayment/lookup/"
}

func (k *KhaltiProvider) refundURL(transactionID string) string {
	return k.baseURL() + "/api/merchant-transaction/" + url.PathEscape(transactionID) + "/refund/"
}

func (k *KhaltiProvider) post(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Authorization", "key "+k.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := k.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func (k *KhaltiProvider) Form(ctx context.Context, p *Payment, _ url.Values) (*Form, error) {
	// a second initiate would start a second charge
	if p.Settled() {
		return nil, &RedirectNeeded{URL: k.URLs.ResultURL(p)}
	}
	if p.ID == 0 {
		if err := k.Recorder.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	name := p.Description
	if name == "" {
		name = "Payment " + p.Token
	}

	// Khalti amount is in paisa.
	payload := map[string]any{
		"return_url":          k.ReturnURL(p),
		"website_url":         k.cfg.WebsiteURL,
		"amount":              MinorUnits(p.Total),
		"purchase_order_id":   p.Token,
		"purchase_order_name": name,
		"customer_info": map[string]string{
			"name":  p.Billing.FullName(),
			"email": p.BillingEmail,
		},
	}

	status, raw, err := k.post(ctx, k.initiateURL(), payload)
	if err != nil {
		return nil, fmt.Errorf("khalti initiate request: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, &PaymentError{
			Message:        "could not start Khalti payment",
			Code:           fmt.Sprint(status),
			GatewayMessage: string(raw),
		}
	}

	var res struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
		ExpiresAt  string `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("khalti initiate decode: %w body=%s", err, string(raw))
	}

	attrs := p.Attrs()
	for key, val := range map[string]string{
		"pidx":        res.Pidx,
		"payment_url": res.PaymentURL,
		"expires_at":  res.ExpiresAt,
	} {
		if err := attrs.Set(key, val); err != nil {
			return nil, fmt.Errorf("khalti %s: %w", key, err)
		}
	}

	if p.Status == StatusWaiting {
		if err := k.Recorder.ChangeStatus(ctx, p, StatusInput, ""); err != nil {
			return nil, err
		}
	} else if err := k.Recorder.Save(ctx, p); err != nil {
		return nil, err
	}
	return nil, &RedirectNeeded{URL: res.PaymentURL}
}

type khaltiLookup struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        string  `json:"status"` // Completed, Pending, Initiated, Expired, User canceled, Refunded, Partially refunded
	TransactionID *string `json:"transaction_id"`
	Fee           int64   `json:"fee"`
	Refunded      bool    `json:"refunded"`
}

func (k *KhaltiProvider) lookup(ctx context.Context, pidx string) (*khaltiLookup, error) {
	status, raw, err := k.post(ctx, k.lookupURL(), map[string]string{"pidx": pidx})
	if err != nil {
		return nil, fmt.Errorf("khalti lookup request: %w", err)
	}

	// Khalti answers 400 for expired and cancelled payments but still sends
	// the lookup body, so decode regardless of status.
	var res khaltiLookup
	if err := json.Unmarshal(raw, &res); err != nil || res.Status == "" {
		return nil, &PaymentError{
			Message:        "khalti lookup failed",
			Code:           fmt.Sprint(status),
			GatewayMessage: string(raw),
		}
	}
	return &res, nil
}

func (k *KhaltiProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	ctx := r.Context()

	// replayed callbacks must not touch captured or refunded money
	if p.Settled() {
		return redirect(w, r, k.URLs.ResultURL(p))
	}

	pidx := strings.TrimSpace(r.URL.Query().Get("pidx"))
	stored, _ := p.Attrs().GetString("pidx")
	if pidx == "" || pidx != stored {
		http.Error(w, "unknown pidx", http.StatusBadRequest)
		return nil
	}

	res, err := k.lookup(ctx, pidx)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(res.Status)) {
	case "completed":
		if res.TotalAmount != MinorUnits(p.Total) {
			msg := fmt.Sprintf("paid amount %d does not match total %d", res.TotalAmount, MinorUnits(p.Total))
			if err := k.Recorder.ChangeFraudStatus(ctx, p, FraudReview, msg, false); err != nil {
				return err
			}
			if err := k.Recorder.ChangeStatus(ctx, p, StatusError, msg); err != nil {
				return err
			}
			return redirect(w, r, k.URLs.FailureURL(p))
		}
		if res.TransactionID != nil {
			p.TransactionID = *res.TransactionID
		}
		p.CapturedAmount = p.Total
		if err := k.Recorder.ChangeStatus(ctx, p, StatusConfirmed, ""); err != nil {
			return err
		}
		return redirect(w, r, k.URLs.SuccessURL(p))
	case "pending", "initiated":
		return redirect(w, r, k.URLs.SuccessURL(p))
	case "refunded":
		if err := k.Recorder.ChangeStatus(ctx, p, StatusRefunded, res.Status); err != nil {
			return err
		}
		return redirect(w, r, k.URLs.FailureURL(p))
	case "partially refunded":
		// money is still captured at Khalti; refunds go through Service.Refund
		return redirect(w, r, k.URLs.FailureURL(p))
	case "expired", "user canceled":
		if err := k.Recorder.ChangeStatus(ctx, p, StatusRejected, res.Status); err != nil {
			return err
		}
		return redirect(w, r, k.URLs.RejectionURL(p))
	}
	return redirect(w, r, k.URLs.FailureURL(p))
}

// Khalti captures at payment time.
func (k *KhaltiProvider) Capture(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotSupported
}

func (k *KhaltiProvider) Release(context.Context, *Payment) error {
	return ErrNotSupported
}

func (k *KhaltiProvider) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	if p.TransactionID == "" {
		return decimal.Zero, &PaymentError{Message: "payment has no khalti transaction id"}
	}
	amount = amountOrTotal(p, amount)

	payload := map[string]any{}
	if !amount.Equal(p.CapturedAmount) {
		payload["amount"] = MinorUnits(amount)
	}

	status, raw, err := k.post(ctx, k.refundURL(p.TransactionID), payload)
	if err != nil {
		return decimal.Zero, fmt.Errorf("khalti refund request: %w", err)
	}
	if status != http.StatusOK {
		return decimal.Zero, &PaymentError{
			Message:        "khalti refund failed",
			Code:           fmt.Sprint(status),
			GatewayMessage: string(raw),
		}
	}
	return amount, nil
}
