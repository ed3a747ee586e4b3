package blocklist

import (
	"sort"
	"strings"
)

// SortField identifies a sortable column.
type SortField string

const (
	SortByUsername SortField = "username"
	SortByDate     SortField = "date"
	SortByVotes    SortField = "votes"
	SortByLocked   SortField = "locked"
)

// SortDirection is the per-field toggle state.
type SortDirection int

const (
	SortNone SortDirection = iota
	SortAsc
	SortDesc
)

// Sorter tracks the active sort column and its toggle state. Repeated
// toggles on one field cycle ascending, descending, then back to the
// original row order; toggling a different field resets the previous one.
type Sorter struct {
	field     SortField
	direction SortDirection
}

// NewSorter returns a Sorter in the unsorted state.
func NewSorter() *Sorter {
	return &Sorter{}
}

// State returns the current field and direction.
func (s *Sorter) State() (SortField, SortDirection) {
	return s.field, s.direction
}

// Toggle advances the toggle state for field and returns the new direction.
func (s *Sorter) Toggle(field SortField) SortDirection {
	if s.field != field {
		s.field = field
		s.direction = SortAsc
		return s.direction
	}
	switch s.direction {
	case SortAsc:
		s.direction = SortDesc
	case SortDesc:
		s.direction = SortNone
	default:
		s.direction = SortAsc
	}
	return s.direction
}

// Apply returns records ordered by the current toggle state. The input
// slice is the original (extraction-order) sequence and is never mutated;
// in the unsorted state a copy of it is returned as-is. The sort is stable
// so repeated toggling over the same data is deterministic.
func (s *Sorter) Apply(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	if s.direction == SortNone {
		return out
	}

	less := lessFunc(s.field)
	sort.SliceStable(out, func(i, j int) bool {
		if s.direction == SortDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(field SortField) func(a, b Record) bool {
	switch field {
	case SortByDate:
		// Missing dates sort as earliest.
		return func(a, b Record) bool {
			at, bt := int64(0), int64(0)
			if a.BlockedAt != nil {
				at = a.BlockedAt.UnixMilli()
			}
			if b.BlockedAt != nil {
				bt = b.BlockedAt.UnixMilli()
			}
			return at < bt
		}
	case SortByVotes:
		return func(a, b Record) bool { return a.VoteWeight < b.VoteWeight }
	case SortByLocked:
		return func(a, b Record) bool { return !a.Locked && b.Locked }
	default:
		return func(a, b Record) bool {
			return strings.ToLower(a.Username) < strings.ToLower(b.Username)
		}
	}
}
