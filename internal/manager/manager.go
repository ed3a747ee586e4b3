// Package manager coordinates extraction, selection state, filters,
// sorting, bulk removal, and lock persistence for one blocked-users table
// view. It operates purely on the data model and emits a View describing
// what a rendering layer should show; it never touches the page itself.
package manager

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"blockward/internal/blocklist"
	"blockward/internal/bulk"
	"blockward/internal/database"
	"blockward/internal/filter"
	"blockward/internal/metrics"
	"blockward/internal/selection"
)

// Config wires a Manager's collaborators.
type Config struct {
	// Store persists the locked set. Required.
	Store database.LockStore

	// Actions invokes the host page's per-row controls. Required for
	// RunRemoval; a Manager without it still supports everything else.
	Actions bulk.RowActions

	// Confirm asks for the up-front batch confirmation. Defaults to
	// bulk.AutoApprove.
	Confirm bulk.Confirmer

	// Dialogs answers dialogs raised during a batch. Defaults to
	// bulk.NopDialogs.
	Dialogs bulk.DialogPolicy

	// DateMath picks the period-cutoff arithmetic for filters and
	// recipes. Defaults to CalendarMath.
	DateMath filter.DateMath

	// InterActionDelay spaces bulk actions. Defaults to
	// bulk.DefaultInterActionDelay.
	InterActionDelay time.Duration

	// SettleDelay gives the native UI time to produce its secondary
	// confirmation affordance. Defaults to bulk.DefaultSettleDelay.
	SettleDelay time.Duration

	// AutoLockTag auto-locks users whose row tag contains this text,
	// case-insensitively. Empty disables tag-driven locking.
	AutoLockTag string
}

// Manager owns the state machine for one table view.
type Manager struct {
	cfg       Config
	sel       *selection.Store
	extractor *blocklist.Extractor
	sorter    *blocklist.Sorter

	records  []blocklist.Record // extraction order
	visible  map[string]struct{}
	filtered bool // whether a filter is currently applied
	hydrated bool
}

// New creates a Manager with an empty selection store. The locked set is
// hydrated separately via HydrateLocks so extraction never blocks on
// persistence.
func New(cfg Config) *Manager {
	if cfg.Confirm == nil {
		cfg.Confirm = bulk.AutoApprove{}
	}
	if cfg.Dialogs == nil {
		cfg.Dialogs = bulk.NopDialogs{}
	}
	if cfg.InterActionDelay <= 0 {
		cfg.InterActionDelay = bulk.DefaultInterActionDelay
	}
	return &Manager{
		cfg:       cfg,
		sel:       selection.NewStore(),
		extractor: blocklist.NewExtractor(),
		sorter:    blocklist.NewSorter(),
	}
}

// Selection exposes the underlying selection store for event handlers that
// operate on it directly.
func (m *Manager) Selection() *selection.Store {
	return m.sel
}

// Refresh runs an extraction pass over the given rows, replacing the
// username universe and pruning selections of usernames that disappeared.
// Rows without a valid username are skipped entirely.
func (m *Manager) Refresh(rows []*html.Node) {
	m.records = m.records[:0]
	usernames := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		rec, err := m.extractor.Extract(row)
		if err != nil {
			metrics.RowsSkippedTotal.WithLabelValues("missing_username").Inc()
			log.Debug().Err(err).Msg("manager: skipping row")
			continue
		}
		// Username is the unique key within one snapshot; the first row
		// wins and later duplicates are dropped.
		if _, dup := seen[rec.Username]; dup {
			metrics.RowsSkippedTotal.WithLabelValues("duplicate_username").Inc()
			log.Warn().Str("username", rec.Username).Msg("manager: skipping duplicate row")
			continue
		}
		seen[rec.Username] = struct{}{}
		rec.Locked = m.sel.IsLocked(rec.Username)
		m.records = append(m.records, rec)
		usernames = append(usernames, rec.Username)
		metrics.RowsExtractedTotal.Inc()
	}

	m.sel.SetAll(usernames)
	m.sel.Prune()
	m.resetVisibility()
	metrics.KnownUsersTotal.Set(float64(len(usernames)))

	log.Info().Int("rows", len(rows)).Int("records", len(m.records)).Msg("manager: extraction pass complete")

	if m.hydrated {
		m.reconcile(context.Background())
	}
}

// RefreshFromFragment is Refresh over a raw HTML fragment.
func (m *Manager) RefreshFromFragment(fragment string) {
	m.Refresh(blocklist.ParseRows(fragment))
}

// HydrateLocks loads the persisted locked set and reconciles it onto the
// current records. Rows render unlocked until this completes. A load
// failure logs and falls back to an empty locked set; it is never fatal.
func (m *Manager) HydrateLocks(ctx context.Context) {
	entries, err := m.cfg.Store.ListLockedUsers(ctx)
	if err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("load").Inc()
		log.Error().Err(err).Msg("manager: locked-set load failed, falling back to empty set")
		entries = nil
	}

	usernames := make([]string, 0, len(entries))
	for _, e := range entries {
		usernames = append(usernames, e.Username)
	}
	m.sel.ReplaceLocked(usernames)
	m.hydrated = true
	m.reconcile(ctx)

	log.Info().Int("locked", len(usernames)).Msg("manager: locked set hydrated")
}

// reconcile applies locked-set membership onto the records and runs the
// tag auto-lock rule.
func (m *Manager) reconcile(ctx context.Context) {
	for i := range m.records {
		rec := &m.records[i]
		if m.cfg.AutoLockTag != "" && !m.sel.IsLocked(rec.Username) &&
			strings.Contains(strings.ToLower(rec.Tag), strings.ToLower(m.cfg.AutoLockTag)) {
			log.Info().Str("username", rec.Username).Str("tag", rec.Tag).Msg("manager: auto-locking tagged user")
			m.lock(ctx, rec.Username, true)
		}
		rec.Locked = m.sel.IsLocked(rec.Username)
	}
	metrics.LockedUsersTotal.Set(float64(len(m.sel.Locked())))
}

// LockUser locks username, clearing any selection it held, and persists the
// change. A save failure leaves the in-memory state ahead of disk; the
// caller may retry by locking again.
func (m *Manager) LockUser(ctx context.Context, username string) {
	m.lock(ctx, username, false)
	m.syncRecord(username)
}

func (m *Manager) lock(ctx context.Context, username string, auto bool) {
	m.sel.Lock(username)

	entry := database.LockedUser{
		Username: username,
		LockedAt: time.Now(),
		Auto:     auto,
	}
	if err := m.cfg.Store.LockUser(ctx, entry); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("save").Inc()
		log.Error().Err(err).Str("username", username).Msg("manager: failed to persist lock")
		return
	}
	m.audit(ctx, database.AuditEntry{
		Action:    database.AuditActionLock,
		Username:  username,
		Timestamp: entry.LockedAt,
	})
}

// UnlockUser unlocks username and persists the change. It does not
// re-select the user.
func (m *Manager) UnlockUser(ctx context.Context, username string) {
	m.sel.Unlock(username)
	m.syncRecord(username)

	if err := m.cfg.Store.UnlockUser(ctx, username); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("save").Inc()
		log.Error().Err(err).Str("username", username).Msg("manager: failed to persist unlock")
		return
	}
	m.audit(ctx, database.AuditEntry{
		Action:    database.AuditActionUnlock,
		Username:  username,
		Timestamp: time.Now(),
	})
}

// ToggleLock flips the lock state of username.
func (m *Manager) ToggleLock(ctx context.Context, username string) {
	if m.sel.IsLocked(username) {
		m.UnlockUser(ctx, username)
	} else {
		m.LockUser(ctx, username)
	}
}

// LockSelected locks every currently selected username.
func (m *Manager) LockSelected(ctx context.Context) {
	for _, u := range m.sel.Selected() {
		m.LockUser(ctx, u)
	}
}

// UnlockSelected is a no-op by construction: a selected username is never
// locked. It exists so the glue layer can bind the control anyway; the
// useful unlock paths are ToggleLock and unlock recipes.
func (m *Manager) UnlockSelected(ctx context.Context) {}

// SelectAll sets the selection state of every visible, non-locked username.
func (m *Manager) SelectAll(checked bool) {
	m.sel.ToggleSelectAll(m.visibleUsernames(), checked)
	metrics.SelectedUsersTotal.Set(float64(m.sel.SelectedCount()))
}

// ApplyFilter re-evaluates a simple filter: the selection is cleared and
// the visibility set recomputed. Applying the same filter twice with no
// intervening state change yields the same visible set.
func (m *Manager) ApplyFilter(f filter.Filter) {
	m.sel.ClearSelection()

	now := time.Now()
	m.visible = make(map[string]struct{})
	for _, rec := range m.records {
		if f.Matches(rec, now, m.cfg.DateMath) {
			m.visible[rec.Username] = struct{}{}
		}
	}
	m.filtered = true

	log.Info().
		Int("visible", len(m.visible)).
		Int("total", len(m.records)).
		Msg("manager: filter applied")
}

// ClearFilter restores full visibility.
func (m *Manager) ClearFilter() {
	m.resetVisibility()
}

func (m *Manager) resetVisibility() {
	m.visible = nil
	m.filtered = false
}

// ApplyRecipe evaluates a recipe in one pass. Select/lock/remove apply to
// eligible unlocked records, unlock to eligible locked ones. The remove
// action selects its eligible set and then drives a removal batch.
func (m *Manager) ApplyRecipe(ctx context.Context, r filter.Recipe) (bulk.Report, error) {
	m.sel.ClearSelection()
	now := time.Now()

	for _, rec := range m.records {
		rec.Locked = m.sel.IsLocked(rec.Username)
		if !r.AppliesTo(rec, now, m.cfg.DateMath) {
			continue
		}
		switch r.Action {
		case filter.ActionSelect, filter.ActionRemove:
			m.sel.Select(rec.Username)
		case filter.ActionLock:
			m.lock(ctx, rec.Username, false)
			m.syncRecord(rec.Username)
		case filter.ActionUnlock:
			m.UnlockUser(ctx, rec.Username)
		}
	}
	metrics.SelectedUsersTotal.Set(float64(m.sel.SelectedCount()))
	metrics.LockedUsersTotal.Set(float64(len(m.sel.Locked())))

	if r.Action == filter.ActionRemove {
		return m.RunRemoval(ctx)
	}
	return bulk.Report{}, nil
}

// RunRemoval removes every selected username through the page's own
// controls, one at a time. The selected list is captured at invocation;
// selection changes during the batch do not affect it.
func (m *Manager) RunRemoval(ctx context.Context) (bulk.Report, error) {
	if m.cfg.Actions == nil {
		log.Error().Msg("manager: no row actions configured, bulk removal unavailable")
		return bulk.Report{}, bulk.ErrNoAffordance
	}

	targets := m.sel.Selected()
	runner := bulk.NewRunner(m.cfg.Actions, m.cfg.Confirm, m.cfg.Dialogs, m.sel, m.cfg.SettleDelay)
	report, err := runner.Run(ctx, targets, m.cfg.InterActionDelay)

	if report.Attempted > 0 {
		m.audit(ctx, database.AuditEntry{
			Action:    database.AuditActionBulkRemove,
			Count:     report.Attempted,
			Timestamp: time.Now(),
		})
	}
	if report.Failed > 0 {
		log.Warn().
			Int("failed", report.Failed).
			Msg("manager: batch finished with errors, re-run to retry the remainder")
	}
	// A declined confirmation (or an all-locked short-circuit) keeps the
	// selection, so read the count back instead of assuming zero.
	metrics.SelectedUsersTotal.Set(float64(m.sel.SelectedCount()))
	return report, err
}

// ToggleSort advances the sort toggle for field and returns the new
// direction.
func (m *Manager) ToggleSort(field blocklist.SortField) blocklist.SortDirection {
	return m.sorter.Toggle(field)
}

// syncRecord refreshes the Locked flag of one record after a lock change.
func (m *Manager) syncRecord(username string) {
	for i := range m.records {
		if m.records[i].Username == username {
			m.records[i].Locked = m.sel.IsLocked(username)
			return
		}
	}
}

func (m *Manager) visibleUsernames() []string {
	if !m.filtered {
		return m.sel.All()
	}
	var out []string
	for _, rec := range m.records {
		if _, ok := m.visible[rec.Username]; ok {
			out = append(out, rec.Username)
		}
	}
	return out
}

func (m *Manager) audit(ctx context.Context, entry database.AuditEntry) {
	if err := m.cfg.Store.LogAction(ctx, entry); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("audit").Inc()
		log.Error().Err(err).Msg("manager: failed to write audit entry")
	}
}
