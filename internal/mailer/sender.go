package mailer

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Sender submits a fully composed RFC 5322 message to the mail transport.
// Submission is at-most-one-attempt; retry policy belongs to the caller.
type Sender interface {
	Send(from string, to []string, msg []byte) error
}

// SMTPSender submits mail over SMTP, optionally with implicit TLS and
// AUTH PLAIN.
type SMTPSender struct {
	Addr     string
	Username string
	Password string
	UseTLS   bool
}

func (s *SMTPSender) Send(from string, to []string, msg []byte) error {
	var client *smtp.Client
	var err error

	if s.UseTLS {
		client, err = smtp.DialTLS(s.Addr, nil)
	} else {
		client, err = smtp.Dial(s.Addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(sasl.NewPlainClient("", s.Username, s.Password)); err != nil {
				return fmt.Errorf("failed to authenticate with SMTP server: %w", err)
			}
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set envelope sender: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data stream: %w", err)
	}

	if _, err := bytes.NewReader(msg).WriteTo(w); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}
