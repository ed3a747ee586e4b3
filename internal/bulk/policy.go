package bulk

import "github.com/rs/zerolog/log"

// AutoApprove is a Confirmer that approves every batch. Useful for
// non-interactive wiring and tests; interactive glue should supply its own.
type AutoApprove struct{}

func (AutoApprove) ConfirmBatch(count int) bool {
	log.Info().Int("count", count).Msg("bulk: batch auto-approved")
	return true
}

// NopDialogs is a DialogPolicy for row collaborators whose actions never
// raise dialogs.
type NopDialogs struct{}

func (NopDialogs) Engage()    {}
func (NopDialogs) Disengage() {}
