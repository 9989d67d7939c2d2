package payments

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("payment not found")
	ErrVariantNotFound       = errors.New("payment variant not registered")
	ErrInvalidStatus         = errors.New("invalid payment status for this operation")
	ErrInvalidFraudStatus    = errors.New("invalid fraud status")
	ErrRefundExceedsCaptured = errors.New("refund amount can not be greater than captured amount")
	ErrCaptureExceedsTotal   = errors.New("capture amount can not be greater than the remaining total")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrNotSupported          = errors.New("operation not supported by provider")
	ErrTokenSpaceExhausted   = errors.New("a possible infinite loop was detected while generating a payment token")
	ErrAttrNotFound          = errors.New("attribute not found")
	ErrAlreadyProcessing     = errors.New("payment is already being processed")
)

// RedirectNeeded tells the caller to send the customer to URL instead of
// rendering a form.
type RedirectNeeded struct {
	URL string
}

func (e *RedirectNeeded) Error() string {
	return "redirect needed: " + e.URL
}

// AsRedirect unwraps a *RedirectNeeded from err.
func AsRedirect(err error) (*RedirectNeeded, bool) {
	var rn *RedirectNeeded
	if errors.As(err, &rn) {
		return rn, true
	}
	return nil, false
}

// PaymentError is a gateway failure the customer may be shown.
type PaymentError struct {
	Message        string
	Code           string
	GatewayMessage string
}

func (e *PaymentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment error %s: %s", e.Code, e.Message)
	}
	return "payment error: " + e.Message
}

func statusError(op string, want Status, got Status) error {
	return fmt.Errorf("%w: only %s payments can be %s (status=%s)", ErrInvalidStatus, want, op, got)
}
