// Package identity extracts and canonicalizes the Ledger page reference
// embedded in a Tracker task's notes. The notes field is the only channel
// linking a task back to its plant page, so extraction has to survive
// arbitrary user edits around the token.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TokenPrefix is the tag that introduces a page reference inside task notes.
const TokenPrefix = "notion_id:"

// ReconciledMarker is the literal appended to notes once a completion has
// been written back to the Ledger. Detection is case-insensitive.
const ReconciledMarker = "synced: yes"

// tokenRE matches both dashed (36-char) and undashed (32-char) page IDs.
// Deliberately loose: user-edited notes must never cause a parse failure.
var tokenRE = regexp.MustCompile(`notion_id:\s*([0-9a-fA-F-]{32,36})`)

// ExtractID returns the normalized page ID from the first reference token in
// notes. The second return is false when no token is present; a malformed or
// missing token is a normal outcome, not an error.
func ExtractID(notes string) (string, bool) {
	m := tokenRE.FindStringSubmatch(notes)
	if m == nil {
		return "", false
	}
	return Normalize(m[1]), true
}

// Normalize canonicalizes a 32-hex-digit page ID to the dashed 8-4-4-4-12
// form. Anything else is returned unchanged, so Normalize is idempotent.
func Normalize(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) != 32 || strings.Contains(id, "-") {
		return id
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}

// IsReconciled reports whether notes carry the reconciliation marker.
func IsReconciled(notes string) bool {
	return strings.Contains(strings.ToLower(notes), ReconciledMarker)
}

// MarkReconciled returns notes with the reconciliation marker appended on its
// own line. Already-marked notes are returned unchanged.
func MarkReconciled(notes string) string {
	if IsReconciled(notes) {
		return notes
	}
	if notes == "" {
		return ReconciledMarker
	}
	return strings.TrimRight(notes, "\n") + "\n" + ReconciledMarker
}
