// Package blocklist defines the data model for blocked-user rows and the
// extraction logic that turns loosely-structured table markup into records.
package blocklist

import "time"

// MaxUsernameLen is the longest username the host site allows. Anything
// longer came out of unexpected markup and is rejected rather than stored.
const MaxUsernameLen = 20

// Record represents one blocked-user row in normalized form.
type Record struct {
	Username   string     `json:"username"`
	BlockedAt  *time.Time `json:"blocked_at,omitempty"` // nil when extraction failed, never fabricated
	VoteWeight int        `json:"vote_weight"`          // net score, defaults to 0 when unextractable
	Locked     bool       `json:"locked"`               // derived from locked-set membership
	Tag        string     `json:"tag,omitempty"`        // user tag text, if the row carries one
}

// HasBlockDate reports whether a block timestamp was successfully extracted.
// Records without one are ignored by date-based filters instead of matching
// the epoch.
func (r Record) HasBlockDate() bool {
	return r.BlockedAt != nil
}

// ValidUsername checks the username extraction contract: non-empty and at
// most MaxUsernameLen characters.
func ValidUsername(username string) bool {
	return username != "" && len(username) <= MaxUsernameLen
}

// ExtractionError describes why a row could not be turned into a Record.
type ExtractionError struct {
	Field   string
	Message string
}

func (e *ExtractionError) Error() string {
	return "blocklist: extraction failed for " + e.Field + ": " + e.Message
}

// ErrMissingUsername is returned when no source yields a valid username.
// Such rows are skipped entirely: not stored, not rendered with controls.
var ErrMissingUsername = &ExtractionError{Field: "username", Message: "no valid username found in row"}
