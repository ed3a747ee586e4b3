package database

import (
	"context"
	"sync"
)

// MockLockStore is an in-memory LockStore for tests. Optional error fields
// make every operation failable so persistence fallbacks can be exercised.
type MockLockStore struct {
	mu      sync.Mutex
	entries map[string]LockedUser
	audit   []AuditEntry

	LoadErr error // returned by ListLockedUsers
	SaveErr error // returned by the mutating methods
}

// NewMockLockStore returns an empty MockLockStore.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{entries: make(map[string]LockedUser)}
}

var _ LockStore = (*MockLockStore)(nil)

func (m *MockLockStore) LockUser(ctx context.Context, entry LockedUser) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Username] = entry
	return nil
}

func (m *MockLockStore) UnlockUser(ctx context.Context, username string) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, username)
	return nil
}

func (m *MockLockStore) IsLocked(ctx context.Context, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[username]
	return ok
}

func (m *MockLockStore) ListLockedUsers(ctx context.Context) ([]LockedUser, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LockedUser, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *MockLockStore) ReplaceLockedUsers(ctx context.Context, entries []LockedUser) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]LockedUser, len(entries))
	for _, e := range entries {
		m.entries[e.Username] = e
	}
	return nil
}

func (m *MockLockStore) LogAction(ctx context.Context, entry AuditEntry) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MockLockStore) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

// AuditLen reports how many audit entries were logged.
func (m *MockLockStore) AuditLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audit)
}
