package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type EsewaConfig struct {
	MerchantCode string
	SecretKey    string
	IsProduction bool
	// FormURL and StatusURL override the eSewa endpoints.
	FormURL   string
	StatusURL string
}

// EsewaProvider posts a signed form to eSewa and verifies the redirect
// against the transaction status API.
type EsewaProvider struct {
	BasicProvider
	cfg        EsewaConfig
	httpClient *http.Client
}

func NewEsewaProvider(b BasicProvider, cfg EsewaConfig, client *http.Client) *EsewaProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &EsewaProvider{BasicProvider: b, cfg: cfg, httpClient: client}
}

func (e *EsewaProvider) formURL() string {
	switch {
	case e.cfg.FormURL != "":
		return e.cfg.FormURL
	case e.cfg.IsProduction:
		return "https://epay.esewa.com.np/api/epay/main/v2/form"
	}
	return "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
}

func (e *EsewaProvider) statusURL() string {
	switch {
	case e.cfg.StatusURL != "":
		return e.cfg.StatusURL
	case e.cfg.IsProduction:
		return "https://epay.esewa.com.np/api/epay/transaction/status/"
	}
	return "https://rc.esewa.com.np/api/epay/transaction/status/"
}

// sign is HMAC-SHA256 over "name=value" pairs joined by commas, in the
// order eSewa lists them in signed_field_names.
func (e *EsewaProvider) sign(names []string, values map[string]string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+values[n])
	}
	mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
	mac.Write([]byte(strings.Join(parts, ",")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (e *EsewaProvider) Form(ctx context.Context, p *Payment, _ url.Values) (*Form, error) {
	if p.Settled() {
		return nil, &RedirectNeeded{URL: e.URLs.ResultURL(p)}
	}
	if p.ID == 0 {
		if err := e.Recorder.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	// eSewa refuses a transaction_uuid it has already seen, so every attempt
	// gets its own.
	attempt := 1
	if v, err := p.Attrs().Get("esewa_attempt"); err == nil {
		if f, ok := v.(float64); ok {
			attempt = int(f) + 1
		}
	}
	txUUID := p.Token + "-" + strconv.Itoa(attempt)

	amount := p.Total.Sub(p.Tax).Sub(p.Delivery)
	fields := map[string]string{
		"amount":                  amount.StringFixed(2),
		"tax_amount":              p.Tax.StringFixed(2),
		"product_service_charge":  "0",
		"product_delivery_charge": p.Delivery.StringFixed(2),
		"total_amount":            p.Total.StringFixed(2),
		"transaction_uuid":        txUUID,
		"product_code":            e.cfg.MerchantCode,
		"success_url":             addQuery(e.ReturnURL(p), "result", "success"),
		"failure_url":             addQuery(e.ReturnURL(p), "result", "failure"),
		"signed_field_names":      "total_amount,transaction_uuid,product_code",
	}
	fields["signature"] = e.sign(strings.Split(fields["signed_field_names"], ","), fields)

	attrs := p.Attrs()
	if err := attrs.Set("esewa_attempt", attempt); err != nil {
		return nil, err
	}
	if err := attrs.Set("transaction_uuid", txUUID); err != nil {
		return nil, err
	}

	if p.Status == StatusWaiting {
		if err := e.Recorder.ChangeStatus(ctx, p, StatusInput, ""); err != nil {
			return nil, err
		}
	} else if err := e.Recorder.Save(ctx, p); err != nil {
		return nil, err
	}

	form := NewForm(e.formURL(), nil)
	form.AutoSubmit = true
	for _, name := range []string{
		"amount", "tax_amount", "product_service_charge", "product_delivery_charge",
		"total_amount", "transaction_uuid", "product_code", "success_url", "failure_url",
		"signed_field_names", "signature",
	} {
		form.Hidden(name, fields[name])
	}
	return form, nil
}

type esewaCallback struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      any    `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

func (c esewaCallback) values(total string) map[string]string {
	return map[string]string{
		"transaction_code":   c.TransactionCode,
		"status":             c.Status,
		"total_amount":       total,
		"transaction_uuid":   c.TransactionUUID,
		"product_code":       c.ProductCode,
		"signed_field_names": c.SignedFieldNames,
	}
}

// eSewa may send the amount as a number or a string.
func normalizeEsewaAmount(v any) (string, error) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t).StringFixed(2), nil
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(t, ",", ""))
		if err != nil {
			return "", fmt.Errorf("invalid total_amount %q", t)
		}
		return d.StringFixed(2), nil
	}
	return "", fmt.Errorf("unsupported total_amount type %T", v)
}

type esewaStatus struct {
	ProductCode     string  `json:"product_code"`
	TransactionUUID string  `json:"transaction_uuid"`
	TotalAmount     any     `json:"total_amount"`
	Status          string  `json:"status"` // COMPLETE, PENDING, FULL_REFUND, PARTIAL_REFUND, AMBIGUOUS, NOT_FOUND, CANCELED
	RefID           *string `json:"ref_id"`
}

func (e *EsewaProvider) checkStatus(ctx context.Context, txUUID string, total string) (*esewaStatus, error) {
	q := url.Values{}
	q.Set("product_code", e.cfg.MerchantCode)
	q.Set("total_amount", total)
	q.Set("transaction_uuid", txUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.statusURL()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa status request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var res esewaStatus
	if err := json.Unmarshal(raw, &res); err != nil || res.Status == "" {
		return nil, &PaymentError{
			Message:        "esewa status check failed",
			Code:           fmt.Sprint(resp.StatusCode),
			GatewayMessage: string(raw),
		}
	}
	return &res, nil
}

// ProcessData handles the browser redirect:
// /v1/payments/process/{token}?result=success|failure&data=<base64 json>
// The payload alone is never trusted; the status API has the final word.
func (e *EsewaProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	ctx := r.Context()
	q := r.URL.Query()

	if p.Settled() {
		return redirect(w, r, e.URLs.ResultURL(p))
	}

	// Unsigned, so it only moves the customer along. An abandoned payment
	// stays in input until a signed callback or the status API says otherwise.
	dataB64 := strings.TrimSpace(q.Get("data"))
	if dataB64 == "" {
		if strings.EqualFold(q.Get("result"), "failure") {
			return redirect(w, r, e.URLs.FailureURL(p))
		}
		http.Error(w, "missing data", http.StatusBadRequest)
		return nil
	}

	rawJSON, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		http.Error(w, "invalid data encoding", http.StatusBadRequest)
		return nil
	}
	var cb esewaCallback
	if err := json.Unmarshal(rawJSON, &cb); err != nil {
		http.Error(w, "invalid esewa payload", http.StatusBadRequest)
		return nil
	}

	stored, _ := p.Attrs().GetString("transaction_uuid")
	if cb.TransactionUUID == "" || cb.TransactionUUID != stored {
		http.Error(w, "unknown transaction", http.StatusBadRequest)
		return nil
	}

	total, err := normalizeEsewaAmount(cb.TotalAmount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	names := strings.Split(cb.SignedFieldNames, ",")
	sigOK := cb.SignedFieldNames != "" &&
		hmac.Equal([]byte(e.sign(names, cb.values(total))), []byte(cb.Signature))

	st, err := e.checkStatus(ctx, cb.TransactionUUID, p.Total.StringFixed(2))
	if err != nil {
		return err
	}

	switch strings.ToUpper(strings.TrimSpace(st.Status)) {
	case "COMPLETE":
		if !sigOK {
			if err := e.Recorder.ChangeFraudStatus(ctx, p, FraudReview, "redirect signature mismatch", false); err != nil {
				return err
			}
		}
		if st.RefID != nil {
			p.TransactionID = *st.RefID
		} else {
			p.TransactionID = cb.TransactionCode
		}
		p.CapturedAmount = p.Total
		if err := e.Recorder.ChangeStatus(ctx, p, StatusConfirmed, ""); err != nil {
			return err
		}
		return redirect(w, r, e.URLs.SuccessURL(p))
	case "PENDING", "AMBIGUOUS":
		return redirect(w, r, e.URLs.SuccessURL(p))
	case "FULL_REFUND":
		if err := e.Recorder.ChangeStatus(ctx, p, StatusRefunded, st.Status); err != nil {
			return err
		}
		return redirect(w, r, e.URLs.FailureURL(p))
	case "PARTIAL_REFUND":
		return redirect(w, r, e.URLs.FailureURL(p))
	}

	if err := e.Recorder.ChangeStatus(ctx, p, StatusRejected, st.Status); err != nil {
		return err
	}
	return redirect(w, r, e.URLs.RejectionURL(p))
}

func (e *EsewaProvider) Capture(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotSupported
}

func (e *EsewaProvider) Release(context.Context, *Payment) error {
	return ErrNotSupported
}

// eSewa has no merchant refund API.
func (e *EsewaProvider) Refund(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotSupported
}

func addQuery(base, key, val string) string {
	u, err := url.Parse(base)
	if err != nil {
		if strings.Contains(base, "?") {
			return base + "&" + url.QueryEscape(key) + "=" + url.QueryEscape(val)
		}
		return base + "?" + url.QueryEscape(key) + "=" + url.QueryEscape(val)
	}
	q := u.Query()
	q.Set(key, val)
	u.RawQuery = q.Encode()
	return u.String()
}
