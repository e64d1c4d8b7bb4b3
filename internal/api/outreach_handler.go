package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lynsa/outreach-backend/internal/correlation"
	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/mailer"
	"github.com/lynsa/outreach-backend/internal/store"
)

// PaymentVerifier checks the payment reference attached to a send request.
// The real payment provider lives in a separate service; the default
// implementation only requires a non-empty reference.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) error
}

// ReferenceVerifier accepts any non-empty payment reference.
type ReferenceVerifier struct{}

func (ReferenceVerifier) Verify(_ context.Context, reference string) error {
	if reference == "" {
		return errors.New("missing payment reference")
	}
	return nil
}

// OutreachHandler handles outreach send, status and history requests.
type OutreachHandler struct {
	store     *store.Store
	messenger *mailer.Messenger
	verifier  PaymentVerifier
}

// NewOutreachHandler creates a new OutreachHandler instance.
func NewOutreachHandler(st *store.Store, messenger *mailer.Messenger, verifier PaymentVerifier) *OutreachHandler {
	if verifier == nil {
		verifier = ReferenceVerifier{}
	}
	return &OutreachHandler{
		store:     st,
		messenger: messenger,
		verifier:  verifier,
	}
}

const maxSendFormBytes = 32 << 20

// Send handles POST /api/v1/outreach. The request is a multipart form with
// sender_name, recipient_email, message, payment_reference, user_id and
// optional attachments.
func (h *OutreachHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxSendFormBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	req := &mailer.SendRequest{
		SenderName:       r.FormValue("sender_name"),
		RecipientEmail:   r.FormValue("recipient_email"),
		Body:             r.FormValue("message"),
		PaymentReference: r.FormValue("payment_reference"),
		OwnerUserID:      r.FormValue("user_id"),
	}

	if req.SenderName == "" || req.RecipientEmail == "" || req.Body == "" || req.OwnerUserID == "" {
		http.Error(w, "sender_name, recipient_email, message and user_id are required", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(ctx, req.PaymentReference); err != nil {
		logging.Log.Warnf("Rejected outreach send, payment not verified: %v", err)
		http.Error(w, "Payment not verified", http.StatusPaymentRequired)
		return
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["attachments"] {
			file, err := header.Open()
			if err != nil {
				http.Error(w, "Failed to read attachment", http.StatusBadRequest)
				return
			}
			data, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				http.Error(w, "Failed to read attachment", http.StatusBadRequest)
				return
			}
			req.Attachments = append(req.Attachments, mailer.Upload{
				FileName: sanitizeFilename(header.Filename),
				MimeType: header.Header.Get("Content-Type"),
				Data:     data,
			})
		}
	}

	correlationID, err := h.messenger.Send(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, mailer.ErrInvalidRecipient),
			errors.Is(err, mailer.ErrAttachmentTooLarge),
			errors.Is(err, mailer.ErrAttachmentType):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logging.Log.Errorf("Failed to send outreach message: %v", err)
			http.Error(w, "Failed to send message", http.StatusInternalServerError)
		}
		return
	}

	WriteJSONResponse(w, map[string]interface{}{
		"success":       true,
		"correlationId": correlationID,
	})
}

// Status handles GET /api/v1/outreach/{correlationId}/status. The id is
// accepted bare or decorated. An unknown id is a plain 404, not an error.
func (h *OutreachHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationID := h.normalizeID(chi.URLParam(r, "correlationId"))

	thread, err := h.store.GetThread(ctx, correlationID)
	if errors.Is(err, store.ErrThreadNotFound) {
		http.Error(w, "Unknown message", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Log.Errorf("Failed to load thread %s: %v", correlationID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, thread)
}

// History handles GET /api/v1/outreach/user/{userID}: the user's outreach
// messages, newest first.
func (h *OutreachHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	threads, err := h.store.ThreadsForOwner(ctx, userID)
	if err != nil {
		logging.Log.Errorf("Failed to load history for user %s: %v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]interface{}{
		"messages": threads,
	})
}

// ReplyAttachment handles GET /api/v1/outreach/{correlationId}/reply-attachment.
// Returns the vault handle of the persisted reply attachment, empty if the
// thread has none.
func (h *OutreachHandler) ReplyAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationID := h.normalizeID(chi.URLParam(r, "correlationId"))

	thread, err := h.store.GetThread(ctx, correlationID)
	if errors.Is(err, store.ErrThreadNotFound) {
		http.Error(w, "Unknown message", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Log.Errorf("Failed to load thread %s: %v", correlationID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	handle := ""
	for _, reply := range thread.Replies {
		if reply.AttachmentHandle != "" {
			handle = reply.AttachmentHandle
			break
		}
	}

	WriteJSONResponse(w, map[string]string{
		"attachmentHandle": handle,
	})
}

func (h *OutreachHandler) normalizeID(raw string) string {
	return correlation.Decorate(correlation.Strip(raw), h.store.Domain())
}
