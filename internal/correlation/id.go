package correlation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDLength is the number of hex characters in a correlation identifier.
// The wire format is pinned: subject tag "[ID:xxxxxx]" and Message-ID
// "<xxxxxx@domain>" with exactly six lowercase hex characters, so replies
// to already-sent mail keep correlating after upgrades.
const IDLength = 6

// NewID generates a random correlation identifier of IDLength lowercase
// hex characters.
func NewID() (string, error) {
	buf := make([]byte, IDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate correlation id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Decorate wraps a bare identifier in the transport Message-ID form
// "<id@domain>". Decorated ids are the canonical keys of the status store,
// the snapshot file and the database.
func Decorate(id, domain string) string {
	return "<" + id + "@" + domain + ">"
}

// Strip normalizes a raw header value or decorated id down to the bare
// identifier: angle brackets removed, domain suffix dropped, lowercased.
func Strip(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "<>")
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	return strings.ToLower(s)
}

// SubjectTag renders the bracketed subject tag for an identifier.
func SubjectTag(id string) string {
	return "[ID:" + id + "]"
}
