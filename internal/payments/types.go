package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPreauth   Status = "preauth"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusRefunded  Status = "refunded"
	StatusError     Status = "error"
	StatusInput     Status = "input"
)

var statuses = []Status{
	StatusWaiting, StatusPreauth, StatusConfirmed, StatusRejected,
	StatusRefunded, StatusError, StatusInput,
}

// Valid reports whether s is one of the known payment statuses.
func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

type FraudStatus string

const (
	FraudUnknown FraudStatus = "unknown"
	FraudAccept  FraudStatus = "accept"
	FraudReject  FraudStatus = "reject"
	FraudReview  FraudStatus = "review"
)

func (s FraudStatus) Valid() bool {
	switch s {
	case FraudUnknown, FraudAccept, FraudReject, FraudReview:
		return true
	}
	return false
}

// BillingAddress is the optional billing contact attached to a payment.
type BillingAddress struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2"`
	City        string `json:"city"`
	Postcode    string `json:"postcode"`
	CountryCode string `json:"country_code"`
	CountryArea string `json:"country_area"`
}

// FullName joins first and last name, skipping empty parts.
func (a BillingAddress) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Payment is a single transaction handled by one provider variant.
type Payment struct {
	ID                int64           `json:"id"`
	Variant           string          `json:"variant"`
	Status            Status          `json:"status"`
	FraudStatus       FraudStatus     `json:"fraud_status"`
	FraudMessage      string          `json:"fraud_message"`
	TransactionID     string          `json:"transaction_id"`
	Currency          string          `json:"currency"`
	Total             decimal.Decimal `json:"total"`
	Delivery          decimal.Decimal `json:"delivery"`
	Tax               decimal.Decimal `json:"tax"`
	CapturedAmount    decimal.Decimal `json:"captured_amount"`
	Description       string          `json:"description"`
	BillingEmail      string          `json:"billing_email"`
	CustomerIPAddress string          `json:"customer_ip_address"`
	Billing           BillingAddress  `json:"billing"`
	ExtraData         string          `json:"-"`
	Message           string          `json:"message"`
	Token             string          `json:"token"`
	Created           time.Time       `json:"created"`
	Modified          time.Time       `json:"modified"`
}

// NewPayment returns a payment with the default statuses set.
func NewPayment(variant, currency string, total decimal.Decimal) *Payment {
	return &Payment{
		Variant:     variant,
		Status:      StatusWaiting,
		FraudStatus: FraudUnknown,
		Currency:    currency,
		Total:       total,
	}
}

// Settled reports whether the money is already held, charged or returned.
// Forms and gateway callbacks leave settled payments alone.
func (p *Payment) Settled() bool {
	switch p.Status {
	case StatusPreauth, StatusConfirmed, StatusRefunded:
		return true
	}
	return false
}

// Remaining is the part of the total that has not been captured yet.
func (p *Payment) Remaining() decimal.Decimal {
	return p.Total.Sub(p.CapturedAmount)
}

// MinorUnits converts an amount to the smallest currency unit (cents, paisa).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ListFilter narrows down merchant listings. Empty fields match everything.
type ListFilter struct {
	Status  Status
	Variant string
	Since   *time.Time
	Limit   int
	Offset  int
}
