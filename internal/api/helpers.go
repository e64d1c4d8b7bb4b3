package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/lynsa/outreach-backend/internal/logging"
)

// WriteJSONResponse encodes v as JSON and writes it with the right headers.
// Returns false when encoding failed; the error is logged and a 500 sent.
// This is a shared helper used across handlers for consistent response
// formatting.
func WriteJSONResponse(w http.ResponseWriter, v interface{}) bool {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Log.Errorf("Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
	return true
}

// sanitizeFilename removes dangerous characters from attachment filenames.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	if cleaned == "" {
		cleaned = "download.bin"
	}

	return cleaned
}
