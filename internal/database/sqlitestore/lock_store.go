// Package sqlitestore provides SQLite-backed store implementations.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"blockward/internal/database"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS locked_users (
	username  TEXT PRIMARY KEY,
	locked_at TEXT NOT NULL,
	auto      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS audit_log (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	action    TEXT NOT NULL,
	username  TEXT NOT NULL DEFAULT '',
	count     INTEGER NOT NULL DEFAULT 0,
	timestamp TEXT NOT NULL
);
`

// LockStore implements database.LockStore using SQLite.
type LockStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*LockStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &LockStore{db: db}, nil
}

// NewLockStore creates a LockStore backed by an existing database. The
// database must already have the schema applied.
func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

// Ensure LockStore implements the interface at compile time.
var _ database.LockStore = (*LockStore)(nil)

// Close closes the underlying database.
func (s *LockStore) Close() error {
	return s.db.Close()
}

func (s *LockStore) LockUser(ctx context.Context, entry database.LockedUser) error {
	auto := 0
	if entry.Auto {
		auto = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locked_users (username, locked_at, auto)
		VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			locked_at = excluded.locked_at,
			auto      = excluded.auto
	`, entry.Username, entry.LockedAt.Format(time.RFC3339Nano), auto)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (s *LockStore) UnlockUser(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locked_users WHERE username = ?`, username)
	return err
}

func (s *LockStore) IsLocked(ctx context.Context, username string) bool {
	var exists int
	_ = s.db.QueryRowContext(ctx, `SELECT 1 FROM locked_users WHERE username = ?`, username).Scan(&exists)
	return exists == 1
}

func (s *LockStore) ListLockedUsers(ctx context.Context) ([]database.LockedUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, locked_at, auto FROM locked_users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []database.LockedUser
	for rows.Next() {
		var u database.LockedUser
		var lockedAtStr string
		var auto int
		if err := rows.Scan(&u.Username, &lockedAtStr, &auto); err != nil {
			return nil, err
		}
		u.LockedAt, _ = time.Parse(time.RFC3339Nano, lockedAtStr)
		u.Auto = auto == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *LockStore) ReplaceLockedUsers(ctx context.Context, entries []database.LockedUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM locked_users`); err != nil {
		return err
	}
	for _, entry := range entries {
		auto := 0
		if entry.Auto {
			auto = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO locked_users (username, locked_at, auto) VALUES (?, ?, ?)
		`, entry.Username, entry.LockedAt.Format(time.RFC3339Nano), auto)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *LockStore) LogAction(ctx context.Context, entry database.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, username, count, timestamp) VALUES (?, ?, ?, ?)
	`, string(entry.Action), entry.Username, entry.Count, entry.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

func (s *LockStore) ListAuditLog(ctx context.Context, limit int) ([]database.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, username, count, timestamp FROM audit_log
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []database.AuditEntry
	for rows.Next() {
		var e database.AuditEntry
		var action, tsStr string
		if err := rows.Scan(&action, &e.Username, &e.Count, &tsStr); err != nil {
			return nil, err
		}
		e.Action = database.AuditAction(action)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
