package session

import (
	"strings"
	"testing"
)

func TestNewID_Format(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}

	if !strings.HasPrefix(id, "rev-") {
		t.Errorf("NewID() = %q, want rev- prefix", id)
	}
	if len(id) != len("rev-")+8 {
		t.Errorf("NewID() length = %d, want %d", len(id), len("rev-")+8)
	}
	for _, r := range id[len("rev-"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("NewID() = %q, contains non-hex rune %q", id, r)
		}
	}
}

func TestNewID_NoCollisions(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate id %q after %d ids", id, i)
		}
		seen[id] = true
	}
}

func TestEmbedExtract_RoundTrip(t *testing.T) {
	kinds := []Kind{KindRoundSummary, KindRoundFindings, KindApproval}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			text := Embed("rev-aa11bb22", kind, "Fixed the nil deref in the parser.")

			id, gotKind, ok := Extract(text)
			if !ok {
				t.Fatalf("Extract() found no marker in embedded text:\n%s", text)
			}
			if id != "rev-aa11bb22" {
				t.Errorf("Extract() id = %q, want rev-aa11bb22", id)
			}
			if gotKind != kind {
				t.Errorf("Extract() kind = %q, want %q", gotKind, kind)
			}
		})
	}
}

func TestEmbed_KeepsHumanBody(t *testing.T) {
	text := Embed("rev-aa11bb22", KindRoundSummary, "Refactored the cache layer.")

	if !strings.Contains(text, "Refactored the cache layer.") {
		t.Errorf("Embed() lost the human body:\n%s", text)
	}
	if !strings.Contains(text, "### Review round summary") {
		t.Errorf("Embed() missing heading:\n%s", text)
	}
}

func TestExtract_NoFalsePositives(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "empty text",
			text: "",
		},
		{
			name: "plain prose",
			text: "This change looks fine to me, nice work.",
		},
		{
			name: "prose mentioning approval",
			text: "I think this needs approval from the security team before merging.",
		},
		{
			name: "prose mentioning a session id",
			text: "See the earlier discussion about rev-aa11bb22 for context.",
		},
		{
			name: "approval heading without marker",
			text: "### Review approved\n\nShip it.",
		},
		{
			name: "marker with unknown kind",
			text: "<!-- review-session: rev-aa11bb22 kind: celebration -->",
		},
		{
			name: "marker with untagged id",
			text: "<!-- review-session: aa11bb22 kind: approval -->",
		},
		{
			name: "marker missing kind",
			text: "<!-- review-session: rev-aa11bb22 -->",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind, ok := Extract(tt.text)
			if ok {
				t.Errorf("Extract(%q) = (%q, %q, true), want no match", tt.text, id, kind)
			}
		})
	}
}

func TestExtract_MarkerPositionIrrelevant(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "marker first",
			text: "<!-- review-session: rev-00ff00ff kind: round-findings -->\n\nTwo blockers below.",
		},
		{
			name: "marker last",
			text: "Two blockers below.\n\n<!-- review-session: rev-00ff00ff kind: round-findings -->",
		},
		{
			name: "marker inline",
			text: "Before <!-- review-session: rev-00ff00ff kind: round-findings --> after",
		},
		{
			name: "extra whitespace inside marker",
			text: "<!--   review-session:   rev-00ff00ff   kind:   round-findings   -->",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind, ok := Extract(tt.text)
			if !ok {
				t.Fatalf("Extract(%q) found no marker", tt.text)
			}
			if id != "rev-00ff00ff" || kind != KindRoundFindings {
				t.Errorf("Extract() = (%q, %q), want (rev-00ff00ff, round-findings)", id, kind)
			}
		})
	}
}

func TestStripMarker(t *testing.T) {
	text := Embed("rev-aa11bb22", KindRoundFindings, "The lock ordering in worker.go is wrong.")

	stripped := StripMarker(text)
	if strings.Contains(stripped, "review-session") {
		t.Errorf("StripMarker() left marker text behind: %q", stripped)
	}
	if !strings.Contains(stripped, "The lock ordering in worker.go is wrong.") {
		t.Errorf("StripMarker() removed human body: %q", stripped)
	}
}
