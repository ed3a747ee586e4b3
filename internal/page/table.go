// Package page adapts a live blocked-users page, driven over CDP with rod,
// into the collaborators the core needs: a row source, the per-row remove
// affordance, and a dialog auto-confirm policy for bulk batches.
package page

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"blockward/internal/bulk"
)

// Selectors locates the table and its per-row controls. The defaults match
// the host site's markup; override them when the page structure differs.
type Selectors struct {
	Table         string
	Rows          string
	RemoveButton  string // per-row native remove affordance
	ConfirmButton string // secondary confirmation, appears after remove
}

// DefaultSelectors returns the host site's selectors.
func DefaultSelectors() Selectors {
	return Selectors{
		Table:         ".enemy-table table",
		Rows:          ".enemy-table table tbody tr",
		RemoveButton:  ".togglebutton",
		ConfirmButton: ".toggle.unfriend-button .yes",
	}
}

// Table is a rod-backed view of the blocked-users table.
type Table struct {
	page *rod.Page
	sel  Selectors
}

// NewTable wraps an already-navigated page.
func NewTable(p *rod.Page, sel Selectors) *Table {
	return &Table{page: p, sel: sel}
}

// WaitReady blocks until the table element is present. This is the explicit
// readiness signal; there is no blind timed retry.
func (t *Table) WaitReady(ctx context.Context) error {
	if _, err := t.page.Context(ctx).Element(t.sel.Table); err != nil {
		return fmt.Errorf("page: blocked-users table not found: %w", err)
	}
	return nil
}

// RowsHTML returns the outer HTML of every table row, concatenated into one
// fragment for the extractor.
func (t *Table) RowsHTML(ctx context.Context) (string, error) {
	rows, err := t.page.Context(ctx).Elements(t.sel.Rows)
	if err != nil {
		return "", fmt.Errorf("page: failed to list rows: %w", err)
	}

	var sb strings.Builder
	for _, row := range rows {
		h, err := row.HTML()
		if err != nil {
			log.Warn().Err(err).Msg("page: failed to read row HTML, skipping")
			continue
		}
		sb.WriteString(h)
	}
	return sb.String(), nil
}

// rowSelector matches a row by its cached username attribute.
func rowSelector(username string) string {
	return fmt.Sprintf(`tr[data-username=%q]`, username)
}

// rowLinkSelector matches a row through its profile link, the fallback when
// no cached attribute is present.
func rowLinkSelector(username string) string {
	return fmt.Sprintf(`tr:has(td .user a[href*="/user/%s"])`, username)
}

// rowFor locates the row element holding username, by cached attribute
// first and profile link second. Lookups use Has, which does not wait: a
// row that vanished mid-batch must surface immediately as not-found, never
// block until the batch context ends.
func (t *Table) rowFor(ctx context.Context, username string) (*rod.Element, error) {
	p := t.page.Context(ctx)

	if has, el, err := p.Has(rowSelector(username)); err == nil && has {
		return el, nil
	}

	has, el, err := p.Has(rowLinkSelector(username))
	if err != nil {
		return nil, fmt.Errorf("page: row lookup for %s: %w", username, err)
	}
	if !has {
		return nil, fmt.Errorf("page: no row for %s", username)
	}
	return el, nil
}

// Remove invokes the native remove affordance on username's row.
func (t *Table) Remove(ctx context.Context, username string) error {
	row, err := t.rowFor(ctx, username)
	if err != nil {
		return bulk.ErrNoAffordance
	}
	has, btn, err := row.Has(t.sel.RemoveButton)
	if err != nil || !has {
		log.Warn().Str("username", username).Msg("page: remove affordance missing")
		return bulk.ErrNoAffordance
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}

// ConfirmRemoval invokes the secondary confirmation affordance if the
// native UI produced one.
func (t *Table) ConfirmRemoval(ctx context.Context, username string) error {
	row, err := t.rowFor(ctx, username)
	if err != nil {
		// The row is often gone once the removal took effect; that is
		// the success case, not a missing affordance.
		return nil
	}
	has, btn, err := row.Has(t.sel.ConfirmButton)
	if err != nil || !has {
		return bulk.ErrNoAffordance
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}

var _ bulk.RowActions = (*Table)(nil)

// DialogAutoConfirm answers every JavaScript dialog the page raises while
// engaged, so bulk removal never blocks on a native confirm. It is the
// injected replacement for patching the page's confirm function.
type DialogAutoConfirm struct {
	page *rod.Page

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDialogAutoConfirm returns a policy bound to the given page.
func NewDialogAutoConfirm(p *rod.Page) *DialogAutoConfirm {
	return &DialogAutoConfirm{page: p}
}

var _ bulk.DialogPolicy = (*DialogAutoConfirm)(nil)

// Engage starts answering dialogs. Confirmation prompts are accepted;
// informational alerts are acknowledged the same way.
func (d *DialogAutoConfirm) Engage() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	p := d.page.Context(ctx)
	wait := p.EachEvent(func(ev *proto.PageJavascriptDialogOpening) {
		log.Info().
			Str("type", string(ev.Type)).
			Str("message", ev.Message).
			Msg("page: auto-confirming dialog")
		if err := (proto.PageHandleJavaScriptDialog{Accept: true}).Call(p); err != nil {
			log.Error().Err(err).Msg("page: failed to answer dialog")
		}
	})
	go wait()
}

// Disengage restores normal dialog behavior. Safe to call more than once.
func (d *DialogAutoConfirm) Disengage() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
