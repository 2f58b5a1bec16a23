package mailer

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"
)

// Mailer sends notification emails. Delivery is best-effort; callers must not
// treat a send failure as fatal.
type Mailer interface {
	Send(to, subject, body string) error
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer builds a Mailer from SMTP_* environment variables.
// Returns nil (and no error) when SMTP_HOST is unset so the email channel
// can be disabled in development.
func NewSMTPMailer() (Mailer, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil, nil
	}

	port := 587
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
		port = p
	}

	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@localhost"
	}

	dialer := gomail.NewDialer(host, port, os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASS"))

	return &smtpMailer{dialer: dialer, from: from}, nil
}

func (m *smtpMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return m.dialer.DialAndSend(msg)
}
