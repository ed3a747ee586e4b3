package filter

import (
	"time"

	"blockward/internal/blocklist"
)

// Action is what a recipe does to its eligible records.
type Action string

const (
	ActionSelect Action = "select"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
	ActionRemove Action = "remove"
)

// DateCriterionMode selects a recipe's date predicate.
type DateCriterionMode string

const (
	CriterionDateAny   DateCriterionMode = "any"
	CriterionOlderThan DateCriterionMode = "older"
	CriterionNewerThan DateCriterionMode = "newer"
)

// DateCriterion is the date half of a recipe.
type DateCriterion struct {
	Mode   DateCriterionMode
	Period Period
}

func (d DateCriterion) matches(rec blocklist.Record, now time.Time, math DateMath) bool {
	switch d.Mode {
	case CriterionDateAny, "":
		return true
	}
	if !rec.HasBlockDate() {
		return false
	}
	cutoff := math.Cutoff(now, d.Period)
	if d.Mode == CriterionNewerThan {
		return !rec.BlockedAt.Before(cutoff)
	}
	return rec.BlockedAt.Before(cutoff)
}

// Comparison selects a recipe's vote predicate.
type Comparison string

const (
	// CompareUpTo matches weights at or above the threshold. For negative
	// thresholds this reads as "no worse than": upTo(-5) matches -5, -4, 0.
	CompareUpTo Comparison = "upTo"

	// CompareGreaterThan matches weights strictly below the threshold.
	CompareGreaterThan Comparison = "greaterThan"
)

// VoteCriterion is the vote half of a recipe. Any means no constraint.
type VoteCriterion struct {
	Any        bool
	Comparison Comparison
	Threshold  int
}

func (v VoteCriterion) matches(rec blocklist.Record) bool {
	if v.Any {
		return true
	}
	switch v.Comparison {
	case CompareUpTo:
		return rec.VoteWeight >= v.Threshold
	case CompareGreaterThan:
		return rec.VoteWeight < v.Threshold
	default:
		return false
	}
}

// Recipe pairs a date+vote eligibility rule with an action, evaluated in
// one pass. Eligibility requires both criteria (AND). The lock state gate
// belongs to the action: select/remove/lock apply only to eligible unlocked
// records, unlock only to eligible locked ones.
type Recipe struct {
	Action Action
	Date   DateCriterion
	Votes  VoteCriterion
}

// Eligible reports whether rec satisfies both of the recipe's criteria,
// ignoring lock state.
func (r Recipe) Eligible(rec blocklist.Record, now time.Time, math DateMath) bool {
	return r.Date.matches(rec, now, math) && r.Votes.matches(rec)
}

// AppliesTo reports whether the recipe's action should touch rec: eligible
// under the criteria and on the right side of the lock gate for the action.
func (r Recipe) AppliesTo(rec blocklist.Record, now time.Time, math DateMath) bool {
	if !r.Eligible(rec, now, math) {
		return false
	}
	if r.Action == ActionUnlock {
		return rec.Locked
	}
	return !rec.Locked
}
