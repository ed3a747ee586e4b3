package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"blockward/internal/database"

	bolt "go.etcd.io/bbolt"
)

// LockStore provides persistent storage for the locked-user set.
type LockStore struct {
	db *bolt.DB
}

// Ensure LockStore implements the interface at compile time.
var _ database.LockStore = (*LockStore)(nil)

// LockUser stores or refreshes a locked-set entry.
func (s *LockStore) LockUser(ctx context.Context, entry database.LockedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketLockedUsers)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketLockedUsers)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal locked user: %w", err)
		}

		return bucket.Put([]byte(entry.Username), data)
	})
}

// UnlockUser removes a user from the locked set.
func (s *LockStore) UnlockUser(ctx context.Context, username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketLockedUsers)
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(username))
	})
}

// IsLocked checks if a user is in the locked set.
func (s *LockStore) IsLocked(ctx context.Context, username string) bool {
	var locked bool

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketLockedUsers)
		if bucket == nil {
			return nil
		}

		locked = bucket.Get([]byte(username)) != nil
		return nil
	})

	return locked
}

// ListLockedUsers returns all locked-set entries.
func (s *LockStore) ListLockedUsers(ctx context.Context) ([]database.LockedUser, error) {
	var users []database.LockedUser

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketLockedUsers)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var user database.LockedUser
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})

	return users, err
}

// ReplaceLockedUsers atomically replaces the whole locked set.
func (s *LockStore) ReplaceLockedUsers(ctx context.Context, entries []database.LockedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(BucketLockedUsers); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bucket, err := tx.CreateBucket(BucketLockedUsers)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal locked user: %w", err)
			}
			if err := bucket.Put([]byte(entry.Username), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LogAction stores an action in the audit log.
func (s *LockStore) LogAction(ctx context.Context, entry database.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketAuditLog)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}

		// Use timestamp-based key for chronological ordering
		// Format: timestamp:username for uniqueness within one instant
		key := fmt.Sprintf("%d:%s", entry.Timestamp.UnixNano(), entry.Username)

		return bucket.Put([]byte(key), data)
	})
}

// ListAuditLog returns the most recent audit log entries.
// Entries are returned in reverse chronological order (newest first).
func (s *LockStore) ListAuditLog(ctx context.Context, limit int) ([]database.AuditEntry, error) {
	var entries []database.AuditEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil && len(entries) < limit; k, v = cursor.Prev() {
			var entry database.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue // Skip malformed entries
			}
			entries = append(entries, entry)
		}

		return nil
	})

	return entries, err
}
