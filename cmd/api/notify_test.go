package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"paykit/internal/mailer"
	"paykit/internal/payments"

	"github.com/stretchr/testify/require"
)

type sentMail struct {
	template, name, email string
	data                  any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(templateFile, username, email string, data any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{templateFile, username, email, data})
	if f.err != nil {
		return -1, f.err
	}
	return 200, nil
}

func TestPaymentStatusMailer(t *testing.T) {
	tests := []struct {
		name   string
		status payments.Status
		email  string
		sent   bool
	}{
		{"confirmed", payments.StatusConfirmed, "john@example.com", true},
		{"rejected", payments.StatusRejected, "john@example.com", true},
		{"refunded", payments.StatusRefunded, "john@example.com", true},
		{"preauth is not announced", payments.StatusPreauth, "john@example.com", false},
		{"no address", payments.StatusConfirmed, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApplication(t)
			fm := &fakeMailer{}
			app.mailer = fm

			p := payments.NewPayment("default", "USD", dec("12.5"))
			p.Token = "tok_1"
			p.Status = tt.status
			p.BillingEmail = tt.email
			p.Billing = payments.BillingAddress{FirstName: "John"}

			require.NoError(t, app.paymentStatusMailer(context.Background(), p))
			app.wg.Wait()

			if !tt.sent {
				require.Empty(t, fm.sent)
				return
			}
			require.Len(t, fm.sent, 1)
			require.Equal(t, mailer.PaymentStatusTemplate, fm.sent[0].template)
			require.Equal(t, "John", fm.sent[0].name)
			require.Equal(t, tt.email, fm.sent[0].email)

			data := fm.sent[0].data.(map[string]any)
			require.Equal(t, "12.50", data["Total"])
			require.Equal(t, string(tt.status), data["Status"])
		})
	}
}

func TestPaymentStatusMailer_SendFailureIsLogged(t *testing.T) {
	app := newTestApplication(t)
	app.mailer = &fakeMailer{err: errors.New("smtp down")}

	p := payments.NewPayment("default", "USD", dec("10"))
	p.Status = payments.StatusConfirmed
	p.BillingEmail = "john@example.com"

	// failures stay in the background goroutine
	require.NoError(t, app.paymentStatusMailer(context.Background(), p))
	app.wg.Wait()
}

func TestPaymentStatusMailer_WiredToSignals(t *testing.T) {
	app := newTestApplication(t)
	fm := &fakeMailer{}
	app.mailer = fm
	app.service.Signals().Subscribe("mail", app.paymentStatusMailer)

	p := payments.NewPayment("default", "USD", dec("10"))
	p.BillingEmail = "john@example.com"
	require.NoError(t, app.service.Save(context.Background(), p))
	require.NoError(t, app.service.ChangeStatus(context.Background(), p, payments.StatusConfirmed, ""))
	app.wg.Wait()

	require.Len(t, fm.sent, 1)
	require.Equal(t, "john@example.com", fm.sent[0].name)
}
