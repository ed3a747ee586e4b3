package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockward/internal/blocklist"
	"blockward/internal/bulk"
	"blockward/internal/database"
	"blockward/internal/filter"
	"blockward/internal/metrics"
)

type fakeRowActions struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeRowActions) Remove(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, username)
	return nil
}

func (f *fakeRowActions) ConfirmRemoval(ctx context.Context, username string) error {
	return nil
}

func rowHTML(username string, blockedAt string, weight int, tag string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<tr data-username=%q`, username)
	if blockedAt != "" {
		fmt.Fprintf(&sb, ` data-block-date=%q`, blockedAt)
	}
	sb.WriteString(`><td class="user">`)
	fmt.Fprintf(&sb, `<a href="/user/%s">%s</a>`, username, username)
	if tag != "" {
		fmt.Fprintf(&sb, `<a class="userTagLink hasTag">%s</a>`, tag)
	}
	fmt.Fprintf(&sb, `</td><td><span class="voteWeight">[%d]</span></td></tr>`, weight)
	return sb.String()
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *database.MockLockStore) {
	t.Helper()
	store := database.NewMockLockStore()
	if cfg.Store == nil {
		cfg.Store = store
	} else {
		store = cfg.Store.(*database.MockLockStore)
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = time.Millisecond
	}
	if cfg.InterActionDelay == 0 {
		cfg.InterActionDelay = bulk.MinInterActionDelay
	}
	return New(cfg), store
}

func TestManager_RefreshBuildsView(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("alice", "2024-01-01T00:00:00Z", 5, "") +
			rowHTML("bob", "", -2, ""))

	v := m.View()
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 2, v.Visible)
	assert.Zero(t, v.Selected)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "alice", v.Rows[0].Record.Username)
	assert.Equal(t, 5, v.Rows[0].Record.VoteWeight)
	assert.Nil(t, v.Rows[1].Record.BlockedAt)
}

func TestManager_RefreshSkipsInvalidRows(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("alice", "", 0, "") +
			`<tr><td>no username here</td></tr>`)

	assert.Equal(t, 1, m.View().Total)
}

func TestManager_RefreshDeduplicatesUsernames(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("alice", "", 1, "") +
			rowHTML("alice", "", -7, "") +
			rowHTML("bob", "", 0, ""))

	v := m.View()
	assert.Equal(t, 2, v.Total)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "alice", v.Rows[0].Record.Username)
	assert.Equal(t, 1, v.Rows[0].Record.VoteWeight, "first occurrence wins within a snapshot")
	assert.Equal(t, "bob", v.Rows[1].Record.Username)
}

func TestManager_RefreshPrunesVanishedSelections(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", 0, "") + rowHTML("bob", "", 0, ""))
	m.Selection().Select("bob")

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	assert.False(t, m.Selection().IsSelected("bob"))
}

func TestManager_HydrateLocksReconciles(t *testing.T) {
	store := database.NewMockLockStore()
	require.NoError(t, store.LockUser(context.Background(), database.LockedUser{
		Username: "bob", LockedAt: time.Now(),
	}))
	m, _ := newTestManager(t, Config{Store: store})

	m.RefreshFromFragment(rowHTML("alice", "", 0, "") + rowHTML("bob", "", 0, ""))
	m.Selection().Select("bob") // selected before hydration lands

	m.HydrateLocks(context.Background())

	v := m.View()
	assert.Equal(t, 1, v.Locked)
	assert.True(t, m.Selection().IsLocked("bob"))
	assert.False(t, m.Selection().IsSelected("bob"), "hydrated lock clears the shadowed selection")
}

func TestManager_HydrateLocksLoadFailureFallsBackEmpty(t *testing.T) {
	store := database.NewMockLockStore()
	store.LoadErr = errors.New("disk gone")
	m, _ := newTestManager(t, Config{Store: store})

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.HydrateLocks(context.Background())

	assert.Zero(t, m.View().Locked)
	// The manager still works after the failed load.
	m.LockUser(context.Background(), "alice")
	assert.True(t, m.Selection().IsLocked("alice"))
}

func TestManager_AutoLockTag(t *testing.T) {
	m, store := newTestManager(t, Config{AutoLockTag: "locked"})

	m.RefreshFromFragment(
		rowHTML("alice", "", 0, "Locked: keep forever") +
			rowHTML("bob", "", 0, "annoying"))
	m.HydrateLocks(context.Background())

	assert.True(t, m.Selection().IsLocked("alice"), "tag containing the marker auto-locks, case-insensitively")
	assert.False(t, m.Selection().IsLocked("bob"))

	entries, err := store.ListLockedUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Auto, "tag-driven locks are marked automatic")
}

func TestManager_LockUserPersistsAndAudits(t *testing.T) {
	m, store := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.Selection().Select("alice")
	m.LockUser(context.Background(), "alice")

	assert.True(t, m.Selection().IsLocked("alice"))
	assert.False(t, m.Selection().IsSelected("alice"))
	assert.True(t, store.IsLocked(context.Background(), "alice"))
	assert.Equal(t, 1, store.AuditLen())
}

func TestManager_LockSurvivesSaveFailure(t *testing.T) {
	store := database.NewMockLockStore()
	store.SaveErr = errors.New("disk full")
	m, _ := newTestManager(t, Config{Store: store})

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.LockUser(context.Background(), "alice")

	// In-memory state leads; persistence catches up on a later retry.
	assert.True(t, m.Selection().IsLocked("alice"))
	assert.Zero(t, store.AuditLen())
}

func TestManager_UnlockDoesNotReselect(t *testing.T) {
	m, store := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.LockUser(context.Background(), "alice")
	m.UnlockUser(context.Background(), "alice")

	assert.False(t, m.Selection().IsLocked("alice"))
	assert.False(t, m.Selection().IsSelected("alice"))
	assert.False(t, store.IsLocked(context.Background(), "alice"))
}

func TestManager_ApplyFilterClearsSelectionAndNarrowsView(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("down", "", -4, "") +
			rowHTML("up", "", 3, ""))
	m.Selection().Select("up")

	m.ApplyFilter(filter.Filter{Votes: filter.VoteSpec{Mode: filter.VoteAllNegative}})

	v := m.View()
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 1, v.Visible)
	assert.Zero(t, v.Selected, "filter application resets the selection")

	// Select-all now only reaches the visible rows.
	m.SelectAll(true)
	assert.True(t, m.Selection().IsSelected("down"))
	assert.False(t, m.Selection().IsSelected("up"))

	m.ClearFilter()
	assert.Equal(t, 2, m.View().Visible)
}

func TestManager_SelectAllSkipsLocked(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", 0, "") + rowHTML("bob", "", 0, ""))
	m.LockUser(context.Background(), "bob")

	m.SelectAll(true)
	assert.True(t, m.Selection().IsSelected("alice"))
	assert.False(t, m.Selection().IsSelected("bob"))
}

func TestManager_ApplyRecipeSelect(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("low", "", -8, "") +
			rowHTML("high", "", 2, ""))

	_, err := m.ApplyRecipe(context.Background(), filter.Recipe{
		Action: filter.ActionSelect,
		Votes:  filter.VoteCriterion{Comparison: filter.CompareGreaterThan, Threshold: 0},
	})
	require.NoError(t, err)

	assert.True(t, m.Selection().IsSelected("low"))
	assert.False(t, m.Selection().IsSelected("high"))
}

func TestManager_ApplyRecipeLockSkipsAlreadyLocked(t *testing.T) {
	m, store := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", 0, "") + rowHTML("bob", "", 0, ""))
	m.LockUser(context.Background(), "alice")
	auditBefore := store.AuditLen()

	_, err := m.ApplyRecipe(context.Background(), filter.Recipe{
		Action: filter.ActionLock,
		Votes:  filter.VoteCriterion{Any: true},
	})
	require.NoError(t, err)

	assert.True(t, m.Selection().IsLocked("bob"))
	// Only bob generated a new lock entry; alice was already locked.
	assert.Equal(t, auditBefore+1, store.AuditLen())
}

func TestManager_ApplyRecipeUnlock(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(rowHTML("alice", "", -3, "") + rowHTML("bob", "", 5, ""))
	m.LockUser(context.Background(), "alice")
	m.LockUser(context.Background(), "bob")

	_, err := m.ApplyRecipe(context.Background(), filter.Recipe{
		Action: filter.ActionUnlock,
		Votes:  filter.VoteCriterion{Comparison: filter.CompareUpTo, Threshold: 0},
	})
	require.NoError(t, err)

	assert.True(t, m.Selection().IsLocked("alice"), "weight -3 fails upTo(0), stays locked")
	assert.False(t, m.Selection().IsLocked("bob"))
}

func TestManager_ApplyRecipeRemove(t *testing.T) {
	actions := &fakeRowActions{}
	m, store := newTestManager(t, Config{Actions: actions})

	m.RefreshFromFragment(
		rowHTML("gone", "", -9, "") +
			rowHTML("kept", "", 4, ""))

	report, err := m.ApplyRecipe(context.Background(), filter.Recipe{
		Action: filter.ActionRemove,
		Votes:  filter.VoteCriterion{Comparison: filter.CompareGreaterThan, Threshold: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"gone"}, actions.removed)
	assert.Zero(t, m.Selection().SelectedCount(), "selection is cleared after the batch")

	entries, err := store.ListAuditLog(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, database.AuditActionBulkRemove, entries[0].Action)
}

func TestManager_RunRemovalExcludesLocked(t *testing.T) {
	actions := &fakeRowActions{}
	m, _ := newTestManager(t, Config{Actions: actions})

	m.RefreshFromFragment(rowHTML("alice", "", 0, "") + rowHTML("bob", "", 0, ""))
	m.SelectAll(true)
	// A lock arriving after selection deselects bob before the batch is
	// captured, so he never enters it.
	m.LockUser(context.Background(), "bob")

	report, err := m.RunRemoval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, actions.removed)
	assert.Equal(t, 1, report.Attempted)
	assert.Zero(t, report.Skipped)
}

type declineConfirm struct{}

func (declineConfirm) ConfirmBatch(count int) bool { return false }

func TestManager_DeclinedBatchKeepsSelection(t *testing.T) {
	actions := &fakeRowActions{}
	m, _ := newTestManager(t, Config{Actions: actions, Confirm: declineConfirm{}})

	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.Selection().Select("alice")

	_, err := m.RunRemoval(context.Background())
	assert.ErrorIs(t, err, bulk.ErrConfirmationDeclined)
	assert.True(t, m.Selection().IsSelected("alice"), "a declined batch keeps the selection")
	assert.Empty(t, actions.removed)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SelectedUsersTotal))
}

func TestManager_RunRemovalWithoutActions(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	m.RefreshFromFragment(rowHTML("alice", "", 0, ""))
	m.Selection().Select("alice")

	_, err := m.RunRemoval(context.Background())
	assert.Error(t, err)
}

func TestManager_ToggleSortOrdersView(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	m.RefreshFromFragment(
		rowHTML("zoe", "", 0, "") +
			rowHTML("adam", "", 0, ""))

	dir := m.ToggleSort(blocklist.SortByUsername)
	assert.Equal(t, blocklist.SortAsc, dir)
	v := m.View()
	assert.Equal(t, "adam", v.Rows[0].Record.Username)
	assert.Equal(t, blocklist.SortByUsername, v.SortField)

	m.ToggleSort(blocklist.SortByUsername)
	m.ToggleSort(blocklist.SortByUsername) // back to extraction order
	v = m.View()
	assert.Equal(t, "zoe", v.Rows[0].Record.Username)
}
