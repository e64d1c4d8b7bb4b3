package correlation

import (
	"regexp"
	"strings"

	"github.com/lynsa/outreach-backend/internal/models"
)

var subjectTagPattern = regexp.MustCompile(`(?i)\[ID:([a-f0-9]{6})\]`)

// ExtractCandidates inspects an inbound email and returns every plausible
// correlation identifier, normalized and in priority order: the subject tag
// first, then In-Reply-To, then each id in References. Mail clients rewrite
// or drop threading headers on reply, so no single source is trusted alone.
func ExtractCandidates(email *models.InboundEmail) []string {
	var candidates []string
	seen := make(map[string]struct{})

	add := func(id string) {
		if len(id) != IDLength {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}

	if m := subjectTagPattern.FindStringSubmatch(email.Subject); m != nil {
		add(strings.ToLower(m[1]))
	}
	if email.InReplyTo != "" {
		add(Strip(email.InReplyTo))
	}
	for _, ref := range email.References {
		add(Strip(ref))
	}

	return candidates
}

// Match resolves an inbound email against the set of tracked identifiers.
// known reports whether a bare id belongs to a tracked thread. Returns the
// first tracked candidate, or ok=false when nothing correlates.
func Match(email *models.InboundEmail, known func(id string) bool) (string, bool) {
	for _, id := range ExtractCandidates(email) {
		if known(id) {
			return id, true
		}
	}
	return "", false
}

// TruncateQuoted cuts a plain-text reply body at the first occurrence of the
// platform's own mailbox marker, so the stored reply contains only the
// human-authored portion and not the quoted original message. HTML-only
// replies are not handled; this is a plain-text heuristic.
func TruncateQuoted(body, marker string) string {
	if marker == "" {
		return strings.TrimSpace(body)
	}
	if idx := strings.Index(body, marker); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
