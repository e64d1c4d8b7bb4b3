package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/vault"
)

// FilesHandler serves stored attachments by vault handle.
type FilesHandler struct {
	vault vault.Vault
}

// NewFilesHandler creates a new FilesHandler instance.
func NewFilesHandler(v vault.Vault) *FilesHandler {
	return &FilesHandler{vault: v}
}

// Get handles GET /files/{handle} and streams the attachment inline.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handle := chi.URLParam(r, "handle")

	att, err := h.vault.Retrieve(ctx, handle)
	if errors.Is(err, vault.ErrAttachmentNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Log.Errorf("Failed to retrieve attachment %s: %v", handle, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("inline", map[string]string{
			"filename": sanitizeFilename(att.FileName),
		}))
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	_, _ = w.Write(att.Data)
}
