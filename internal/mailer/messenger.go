package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/lynsa/outreach-backend/internal/correlation"
	"github.com/lynsa/outreach-backend/internal/models"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/vault"
)

var (
	// ErrInvalidRecipient is returned when the recipient address does not parse.
	ErrInvalidRecipient = errors.New("invalid recipient address")
	// ErrAttachmentTooLarge is returned when an attachment exceeds the size ceiling.
	ErrAttachmentTooLarge = errors.New("attachment too large")
	// ErrAttachmentType is returned for attachment MIME types outside the allow list.
	ErrAttachmentType = errors.New("attachment type not allowed")
)

// allowedAttachmentTypes mirrors the upload filter of the web layer.
var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// SendRequest carries everything needed to dispatch one outreach email.
// Payment verification has already happened upstream; PaymentReference is
// recorded as-is.
type SendRequest struct {
	SenderName       string
	RecipientEmail   string
	Body             string
	PaymentReference string
	OwnerUserID      string
	Attachments      []Upload
}

// Upload is a user-supplied outbound attachment.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Messenger composes and dispatches initial outreach emails and registers
// the tracked thread.
type Messenger struct {
	store    *store.Store
	vault    vault.Vault
	sender   Sender
	domain   string
	from     string
	maxBytes int64
}

func NewMessenger(st *store.Store, v vault.Vault, sender Sender, domain, from string, maxAttachmentBytes int64) *Messenger {
	return &Messenger{
		store:    st,
		vault:    v,
		sender:   sender,
		domain:   domain,
		from:     from,
		maxBytes: maxAttachmentBytes,
	}
}

// Send dispatches one outreach email and returns the decorated correlation
// id of the new thread.
//
// The thread is registered in the status store before the SMTP submission,
// so a reply arriving unusually fast is never unmatchable. If the transport
// submission fails, the thread stays registered in state sent and the error
// is returned; a retry mints a fresh id and a fresh thread.
func (m *Messenger) Send(ctx context.Context, req *SendRequest) (string, error) {
	if _, err := mail.ParseAddress(req.RecipientEmail); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, req.RecipientEmail)
	}

	for _, att := range req.Attachments {
		if int64(len(att.Data)) > m.maxBytes {
			return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAttachmentTooLarge, att.FileName, len(att.Data), m.maxBytes)
		}
		if !allowedAttachmentTypes[att.MimeType] {
			return "", fmt.Errorf("%w: %s", ErrAttachmentType, att.MimeType)
		}
	}

	id, err := correlation.NewID()
	if err != nil {
		return "", err
	}
	decorated := correlation.Decorate(id, m.domain)

	outbound := make([]models.OutboundAttachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		handle, err := m.vault.Store(ctx, att.FileName, att.MimeType, att.Data)
		if err != nil {
			return "", fmt.Errorf("failed to store outbound attachment: %w", err)
		}
		outbound = append(outbound, models.OutboundAttachment{FileName: att.FileName, Handle: handle})
	}

	thread := &models.Thread{
		CorrelationID: decorated,
		Sender:        req.SenderName,
		Recipient:     req.RecipientEmail,
		Body:          req.Body,
		PaymentID:     req.PaymentReference,
		OwnerUserID:   req.OwnerUserID,
		State:         models.StateSent,
		Attachments:   outbound,
	}

	if err := m.store.CreateThread(ctx, thread); err != nil {
		return "", fmt.Errorf("failed to register thread: %w", err)
	}

	msg, err := composeOutbound(req, id, m.domain, m.from)
	if err != nil {
		return decorated, err
	}

	if err := m.sender.Send(m.from, []string{req.RecipientEmail}, msg); err != nil {
		return decorated, fmt.Errorf("failed to submit outreach email: %w", err)
	}

	return decorated, nil
}
