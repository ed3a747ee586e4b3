// Package filter evaluates filter and recipe predicates against blocked-user
// records. Everything here is a pure function over (record, spec, now);
// applying the resulting matches to selection or lock state is the caller's
// business.
package filter

import (
	"fmt"
	"time"

	"blockward/internal/blocklist"
)

// Period names a relative block-age cutoff.
type Period string

const (
	Period1Month  Period = "1month"
	Period2Months Period = "2months"
	Period3Months Period = "3months"
	Period6Months Period = "6months"
	Period1Year   Period = "1year"
)

// DateMath selects how a named Period is turned into a cutoff instant. The
// two strategies disagree near month boundaries, so the choice is explicit
// configuration rather than an implementation detail.
type DateMath int

const (
	// CalendarMath subtracts calendar months/years (February minus one
	// month lands in January, whatever its length).
	CalendarMath DateMath = iota

	// FixedDayMath subtracts fixed day counts: 30 days per month,
	// 365 per year.
	FixedDayMath
)

// Cutoff computes the cutoff instant for p relative to now.
func (m DateMath) Cutoff(now time.Time, p Period) time.Time {
	months := map[Period]int{
		Period1Month:  1,
		Period2Months: 2,
		Period3Months: 3,
		Period6Months: 6,
		Period1Year:   12,
	}[p]

	if m == FixedDayMath {
		days := months * 30
		if p == Period1Year {
			days = 365
		}
		return now.AddDate(0, 0, -days)
	}
	if p == Period1Year {
		return now.AddDate(-1, 0, 0)
	}
	return now.AddDate(0, -months, 0)
}

// DateMode selects the simple filter's date predicate.
type DateMode string

const (
	DateAny       DateMode = "any"
	DateOlderThan DateMode = "older"
)

// DateSpec is the date half of a simple filter.
type DateSpec struct {
	Mode   DateMode
	Period Period
}

// Matches reports whether rec satisfies the date predicate. Records with no
// known block date never match an age-bounded spec.
func (d DateSpec) Matches(rec blocklist.Record, now time.Time, math DateMath) bool {
	if d.Mode == DateAny || d.Mode == "" {
		return true
	}
	if !rec.HasBlockDate() {
		return false
	}
	return rec.BlockedAt.Before(math.Cutoff(now, d.Period))
}

// VoteMode selects the simple filter's vote-weight predicate.
type VoteMode string

const (
	VoteAny           VoteMode = "any"
	VotePositiveOnly  VoteMode = "positive" // > 0
	VoteZeroOrGreater VoteMode = "zero+"    // >= 0
	VoteAllNegative   VoteMode = "negative" // < 0
	VoteBetterThan    VoteMode = "better"   // > -threshold
	VoteWorseThan     VoteMode = "worse"    // < -threshold
)

// VoteSpec is the vote-weight half of a simple filter. Threshold applies to
// the better/worse modes and is interpreted as a magnitude: betterThan(5)
// matches weights strictly greater than -5.
type VoteSpec struct {
	Mode      VoteMode
	Threshold int
}

// Matches reports whether rec satisfies the vote predicate.
func (v VoteSpec) Matches(rec blocklist.Record) bool {
	w := rec.VoteWeight
	switch v.Mode {
	case VoteAny, "":
		return true
	case VotePositiveOnly:
		return w > 0
	case VoteZeroOrGreater:
		return w >= 0
	case VoteAllNegative:
		return w < 0
	case VoteBetterThan:
		return w > -v.Threshold
	case VoteWorseThan:
		return w < -v.Threshold
	default:
		return false
	}
}

// Filter is a simple filter: independently-evaluated date and vote specs
// combined with AND. Applying the same Filter twice with no intervening
// state change yields the same visible set both times.
type Filter struct {
	Date  DateSpec
	Votes VoteSpec
}

// Matches reports whether rec satisfies both halves of the filter.
func (f Filter) Matches(rec blocklist.Record, now time.Time, math DateMath) bool {
	return f.Date.Matches(rec, now, math) && f.Votes.Matches(rec)
}

// VisibleSet returns the usernames of records matching f, in input order.
func (f Filter) VisibleSet(records []blocklist.Record, now time.Time, math DateMath) []string {
	var out []string
	for _, rec := range records {
		if f.Matches(rec, now, math) {
			out = append(out, rec.Username)
		}
	}
	return out
}

// ParseVoteMode maps a control value like "better-5" or "worse-10" to a
// VoteSpec. Unknown values produce an error so the glue layer can surface a
// configuration problem instead of silently matching everything.
func ParseVoteMode(value string) (VoteSpec, error) {
	switch value {
	case "", "all", string(VoteAny):
		return VoteSpec{Mode: VoteAny}, nil
	case string(VotePositiveOnly):
		return VoteSpec{Mode: VotePositiveOnly}, nil
	case string(VoteZeroOrGreater):
		return VoteSpec{Mode: VoteZeroOrGreater}, nil
	case string(VoteAllNegative):
		return VoteSpec{Mode: VoteAllNegative}, nil
	case "better-5", "better-10", "better-15", "worse-5", "worse-10", "worse-15":
		var mode VoteMode
		var k int
		if _, err := fmt.Sscanf(value, "better-%d", &k); err == nil {
			mode = VoteBetterThan
		} else if _, err := fmt.Sscanf(value, "worse-%d", &k); err == nil {
			mode = VoteWorseThan
		}
		return VoteSpec{Mode: mode, Threshold: k}, nil
	default:
		return VoteSpec{}, fmt.Errorf("filter: unknown vote mode %q", value)
	}
}
