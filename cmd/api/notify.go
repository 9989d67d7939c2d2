package main

import (
	"context"

	"paykit/internal/mailer"
	"paykit/internal/payments"
)

// notifyStatuses are the transitions the customer hears about by e-mail.
var notifyStatuses = map[payments.Status]bool{
	payments.StatusConfirmed: true,
	payments.StatusRejected:  true,
	payments.StatusRefunded:  true,
}

// paymentStatusMailer is a payments.StatusHandler. Mail goes out in the
// background so a slow SMTP server never holds up a gateway callback.
func (app *application) paymentStatusMailer(_ context.Context, p *payments.Payment) error {
	if app.mailer == nil || p.BillingEmail == "" || !notifyStatuses[p.Status] {
		return nil
	}

	name := p.Billing.FullName()
	if name == "" {
		name = p.BillingEmail
	}
	data := map[string]any{
		"Name":        name,
		"Token":       p.Token,
		"Status":      string(p.Status),
		"Total":       p.Total.StringFixed(2),
		"Currency":    p.Currency,
		"Description": p.Description,
		"Message":     p.Message,
	}
	email, token := p.BillingEmail, p.Token

	app.background(func() {
		status, err := app.mailer.Send(mailer.PaymentStatusTemplate, name, email, data)
		if err != nil {
			app.logger.Errorw("error sending payment status email", "token", token, "error", err.Error())
			return
		}
		app.logger.Infow("payment status email sent", "token", token, "status code", status)
	})
	return nil
}
