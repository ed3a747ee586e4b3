// Package database defines the persistence interface for the locked-user
// set and the action audit trail. Implementations live in the boltstore and
// sqlitestore subpackages; swapping one for the other is a wiring change.
package database

import (
	"context"
	"time"
)

// LockedUser is one durable locked-set entry. Entry order is not
// semantically significant on reload.
type LockedUser struct {
	Username string    `json:"username"`
	LockedAt time.Time `json:"locked_at"`
	Auto     bool      `json:"auto"` // true when locked by a tag rule, not by hand
}

// AuditAction is a type of recorded action.
type AuditAction string

const (
	AuditActionLock       AuditAction = "lock"
	AuditActionUnlock     AuditAction = "unlock"
	AuditActionBulkRemove AuditAction = "bulk_remove"
)

// AuditEntry is one logged action against the blocked-users table.
type AuditEntry struct {
	Action    AuditAction `json:"action"`
	Username  string      `json:"username,omitempty"` // empty for batch-level entries
	Count     int         `json:"count,omitempty"`    // batch size for bulk entries
	Timestamp time.Time   `json:"timestamp"`
}

// LockStore persists the locked set. Implementations must be safe for
// concurrent use. All methods accept a context.Context to support
// cancellation and timeouts.
type LockStore interface {
	// LockUser stores or refreshes a locked-set entry.
	LockUser(ctx context.Context, entry LockedUser) error

	// UnlockUser removes a user from the locked set. Removing an absent
	// user is not an error.
	UnlockUser(ctx context.Context, username string) error

	// IsLocked checks membership without loading the whole set.
	IsLocked(ctx context.Context, username string) bool

	// ListLockedUsers returns every locked-set entry.
	ListLockedUsers(ctx context.Context) ([]LockedUser, error)

	// ReplaceLockedUsers atomically replaces the whole locked set.
	ReplaceLockedUsers(ctx context.Context, entries []LockedUser) error

	// LogAction appends to the audit trail.
	LogAction(ctx context.Context, entry AuditEntry) error

	// ListAuditLog returns the most recent entries, newest first.
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)
}
