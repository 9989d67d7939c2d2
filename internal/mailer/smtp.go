package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "gopkg.in/mail.v2"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPClient struct {
	fromEmail string
	dialer    sender
	backoff   time.Duration
}

func NewSMTPClient(host string, port int, username, password, fromEmail string) (*SMTPClient, error) {
	if host == "" || fromEmail == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	return &SMTPClient{
		fromEmail: fromEmail,
		dialer:    gomail.NewDialer(host, port, username, password),
		backoff:   time.Second,
	}, nil
}

// Send renders the "subject" and "body" blocks of templateFile and mails
// them, retrying with linear backoff.
func (c *SMTPClient) Send(templateFile, username, email string, data any) (int, error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return -1, err
	}

	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, "subject", data); err != nil {
		return -1, err
	}
	body := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(body, "body", data); err != nil {
		return -1, err
	}

	message := gomail.NewMessage()
	message.SetAddressHeader("From", c.fromEmail, FromName)
	message.SetAddressHeader("To", email, username)
	message.SetHeader("Subject", subject.String())
	message.AddAlternative("text/html", body.String())

	var retryErr error
	for i := 0; i < maxRetires; i++ {
		retryErr = c.dialer.DialAndSend(message)
		if retryErr == nil {
			return 200, nil
		}
		time.Sleep(time.Duration(i+1) * c.backoff)
	}
	return -1, fmt.Errorf("failed to send email after %d attempts, error: %v", maxRetires, retryErr)
}
