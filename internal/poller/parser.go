package poller

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/lynsa/outreach-backend/internal/models"
)

// ParseInbound decodes one raw RFC 822 message into the normalized form the
// matcher works on.
func ParseInbound(uid uint32, r io.Reader) (*models.InboundEmail, error) {
	envelope, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", uid, err)
	}

	email := &models.InboundEmail{
		UID:        uid,
		From:       envelope.GetHeader("From"),
		Subject:    envelope.GetHeader("Subject"),
		InReplyTo:  envelope.GetHeader("In-Reply-To"),
		References: strings.Fields(envelope.GetHeader("References")),
		Text:       envelope.Text,
		ReceivedAt: parseDate(envelope.GetHeader("Date")),
	}

	if email.Text == "" && envelope.HTML != "" {
		email.Text = envelope.HTML
	}

	for _, part := range envelope.Attachments {
		email.Attachments = append(email.Attachments, models.InboundAttachment{
			FileName: part.FileName,
			MimeType: part.ContentType,
			Data:     part.Content,
		})
	}

	return email, nil
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}
