package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Kind discriminates the record types a review session is made of
type Kind string

const (
	// KindRoundSummary is posted by the reviewee: what changed this round
	KindRoundSummary Kind = "round-summary"
	// KindRoundFindings is posted by the reviewer: blockers and suggestions
	KindRoundFindings Kind = "round-findings"
	// KindApproval is posted by the reviewer on a zero-findings round and
	// permanently closes the session
	KindApproval Kind = "approval"
)

const (
	idTag       = "rev-"
	idRandBytes = 4
)

// markerPattern matches only the hidden machine marker. Prose that merely
// mentions "approval" or a session id never matches.
var markerPattern = regexp.MustCompile(
	`<!--\s*review-session:\s*(` + idTag + `[0-9a-f]+)\s+kind:\s*(round-summary|round-findings|approval)\s*-->`)

// NewID generates a session identifier: the constant tag plus 4 random bytes
// rendered as hex. No external state is consulted.
func NewID() (string, error) {
	buf := make([]byte, idRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return idTag + hex.EncodeToString(buf), nil
}

// heading returns the human-facing section title for a record kind.
// Parsing never depends on these; only the marker counts.
func heading(kind Kind) string {
	switch kind {
	case KindRoundFindings:
		return "### Review findings"
	case KindApproval:
		return "### Review approved"
	default:
		return "### Review round summary"
	}
}

// Embed renders a protocol record: a human heading, the free-form body, and
// the hidden marker carrying the session id and kind.
func Embed(id string, kind Kind, body string) string {
	var b strings.Builder
	b.WriteString(heading(kind))

	if body = strings.TrimSpace(body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}

	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<!-- review-session: %s kind: %s -->", id, kind)
	return b.String()
}

// Extract returns the session id and kind embedded in text. ok is false when
// no marker is present; only the exact structural marker matches.
func Extract(text string) (id string, kind Kind, ok bool) {
	m := markerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], Kind(m[2]), true
}

// StripMarker removes the machine marker from a record, leaving the
// human-readable portion.
func StripMarker(text string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
}
