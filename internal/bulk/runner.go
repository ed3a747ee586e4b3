// Package bulk sequences per-row removal invocations against the host
// page's own affordances, spacing them out to respect the site's rate
// limit and auto-answering any dialogs the native UI raises in between.
package bulk

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"blockward/internal/metrics"
)

const (
	// MinInterActionDelay is the floor on inter-action spacing. The host
	// site allows roughly 60 actions per minute.
	MinInterActionDelay = time.Second

	// DefaultInterActionDelay leaves headroom below the rate limit.
	DefaultInterActionDelay = 2 * time.Second

	// DefaultSettleDelay is how long the native UI gets to produce its
	// secondary confirmation affordance after a remove.
	DefaultSettleDelay = 250 * time.Millisecond
)

// ErrNoAffordance is returned by RowActions implementations when a row's
// remove or confirm control cannot be found. It is a per-row failure, never
// fatal to the batch.
var ErrNoAffordance = errors.New("bulk: affordance not found")

// ErrConfirmationDeclined is returned when the user declines the single
// up-front batch confirmation.
var ErrConfirmationDeclined = errors.New("bulk: batch confirmation declined")

// ErrEmptyBatch is returned when Run is invoked with no usernames.
var ErrEmptyBatch = errors.New("bulk: empty batch")

// RowActions invokes the host page's per-row controls.
type RowActions interface {
	// Remove invokes the native remove affordance for username.
	Remove(ctx context.Context, username string) error

	// ConfirmRemoval invokes the secondary confirmation affordance, if
	// the native UI produced one. ErrNoAffordance means it did not.
	ConfirmRemoval(ctx context.Context, username string) error
}

// Confirmer asks for the one up-front batch confirmation.
type Confirmer interface {
	ConfirmBatch(count int) bool
}

// DialogPolicy is the injected capability that answers dialogs raised by
// the per-row actions while a batch is running. Engage is called before the
// first action and Disengage after the final settle delay, on every path.
type DialogPolicy interface {
	Engage()
	Disengage()
}

// SelectionState is the slice of selection behavior the runner needs:
// the lock check that gates every action and the terminal selection clear.
type SelectionState interface {
	IsLocked(username string) bool
	ClearSelection()
}

// Report tallies one batch.
type Report struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int // locked usernames, never acted upon
}

// Runner executes bulk removal batches.
type Runner struct {
	actions RowActions
	confirm Confirmer
	dialogs DialogPolicy
	sel     SelectionState
	settle  time.Duration
}

// NewRunner wires a Runner. A zero settle falls back to DefaultSettleDelay.
func NewRunner(actions RowActions, confirm Confirmer, dialogs DialogPolicy, sel SelectionState, settle time.Duration) *Runner {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Runner{
		actions: actions,
		confirm: confirm,
		dialogs: dialogs,
		sel:     sel,
		settle:  settle,
	}
}

// Run removes the given usernames one at a time, the i-th action starting
// no earlier than i*delay after the batch start. The username list is
// captured here: selection changes during the batch do not affect it.
// Locked usernames are skipped with a warning, never acted upon. The
// selection is cleared when the batch finishes regardless of outcome.
func (r *Runner) Run(ctx context.Context, usernames []string, delay time.Duration) (Report, error) {
	var report Report

	if len(usernames) == 0 {
		return report, ErrEmptyBatch
	}
	if delay < MinInterActionDelay {
		log.Warn().
			Dur("requested", delay).
			Dur("floor", MinInterActionDelay).
			Msg("bulk: inter-action delay below rate-limit floor, clamping")
		delay = MinInterActionDelay
	}

	batch := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if r.sel.IsLocked(u) {
			log.Warn().Str("username", u).Msg("bulk: refusing to act on locked user")
			report.Skipped++
			continue
		}
		batch = append(batch, u)
	}
	if len(batch) == 0 {
		return report, nil
	}

	if !r.confirm.ConfirmBatch(len(batch)) {
		return report, ErrConfirmationDeclined
	}

	log.Info().
		Int("count", len(batch)).
		Dur("delay", delay).
		Msg("bulk: starting removal batch")
	metrics.BulkBatchesTotal.Inc()
	start := time.Now()

	r.dialogs.Engage()
	defer func() {
		// Restoration is the terminal step and runs on every path,
		// after the final settle delay.
		r.sleep(ctx, r.settle)
		r.dialogs.Disengage()
		r.sel.ClearSelection()
		metrics.BulkBatchDuration.Observe(time.Since(start).Seconds())
		log.Info().
			Int("attempted", report.Attempted).
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Msg("bulk: batch finished")
	}()

	for i, username := range batch {
		// The i-th slot opens at i*delay after batch start. Per-row
		// settle time can push actions later, never earlier.
		if !r.sleepUntil(ctx, start.Add(time.Duration(i)*delay)) {
			log.Warn().
				Int("remaining", len(batch)-i).
				Msg("bulk: batch cancelled, skipping remaining actions")
			return report, ctx.Err()
		}

		report.Attempted++
		if err := r.removeOne(ctx, username); err != nil {
			report.Failed++
			metrics.BulkActionsTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("username", username).Msg("bulk: row action failed")
			continue
		}
		report.Succeeded++
		metrics.BulkActionsTotal.WithLabelValues("succeeded").Inc()
	}

	return report, nil
}

// removeOne performs one per-row action: remove, settle, then the secondary
// confirmation. A missing affordance at either step surfaces as an error so
// the caller can tally it; it never aborts the batch.
func (r *Runner) removeOne(ctx context.Context, username string) error {
	if err := r.actions.Remove(ctx, username); err != nil {
		return err
	}

	r.sleep(ctx, r.settle)

	return r.actions.ConfirmRemoval(ctx, username)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sleepUntil blocks until t or cancellation; it reports whether t arrived.
func (r *Runner) sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
