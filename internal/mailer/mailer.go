package mailer

import "embed"

const (
	FromName              = "Paykit"
	maxRetires            = 3
	PaymentStatusTemplate = "payment_status.tmpl"
)

//go:embed "templates"
var FS embed.FS

// Client renders templateFile from FS and mails it to email. Send returns 200
// once the message is accepted, or -1 with the last error after retries.
type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
