package mailer

import (
	"bytes"
	"fmt"

	"github.com/jhillyerd/enmime"
	"github.com/lynsa/outreach-backend/internal/correlation"
)

// outreachSubject renders the subject of the initial email. The trailing
// bracketed tag is part of the correlation wire format and must survive
// "Re: " prefixing by the recipient's mail client.
func outreachSubject(senderName, id string) string {
	return fmt.Sprintf("%s is inviting you to connect via Lynsa %s", senderName, correlation.SubjectTag(id))
}

// composeOutbound builds the initial outreach email with the correlation id
// embedded twice: in the subject tag and in the Message-ID / In-Reply-To
// headers. Mail clients strip or rewrite either one; redundancy is what
// makes reply matching work at all.
func composeOutbound(req *SendRequest, id, domain, from string) ([]byte, error) {
	decorated := correlation.Decorate(id, domain)

	textBody := fmt.Sprintf(
		"%s\n\n**This message is sent via Lynsa. You can reply to this email to connect with %s\nLogin to Lynsa at www.lynsa.in to continue.\nPayment ID: %s\nMessage ID: %s\n",
		req.Body, req.SenderName, req.PaymentReference, id,
	)
	htmlBody := fmt.Sprintf(
		"<p>%s</p><br><p>**This message is sent via Lynsa. You can reply to this email to connect with %s</p><p>Login to Lynsa at www.lynsa.in to continue.</p><p>Payment ID: %s</p><p>Message ID: %s</p>",
		req.Body, req.SenderName, req.PaymentReference, id,
	)

	builder := enmime.Builder().
		From("", from).
		To("", req.RecipientEmail).
		Subject(outreachSubject(req.SenderName, id)).
		Text([]byte(textBody)).
		HTML([]byte(htmlBody)).
		Header("Message-Id", decorated).
		Header("In-Reply-To", decorated)

	for _, att := range req.Attachments {
		builder = builder.AddAttachment(att.Data, att.MimeType, att.FileName)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build outreach email: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode outreach email: %w", err)
	}

	return buf.Bytes(), nil
}
