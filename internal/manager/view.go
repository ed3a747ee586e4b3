package manager

import "blockward/internal/blocklist"

// RowView describes how one row should be rendered.
type RowView struct {
	Record   blocklist.Record
	Visible  bool
	Selected bool
	Locked   bool
}

// View is the full render description for the table: ordered rows plus the
// counts the toolbar shows. The rendering layer applies it; the core never
// mutates the page.
type View struct {
	Rows []RowView

	Total    int
	Visible  int
	Selected int
	Locked   int

	SortField     blocklist.SortField
	SortDirection blocklist.SortDirection
}

// View computes the current render description: records in the active sort
// order, each annotated with visibility, selection, and lock state.
func (m *Manager) View() View {
	ordered := m.sorter.Apply(m.records)
	field, direction := m.sorter.State()

	v := View{
		Rows:          make([]RowView, 0, len(ordered)),
		Total:         len(ordered),
		SortField:     field,
		SortDirection: direction,
	}

	for _, rec := range ordered {
		rec.Locked = m.sel.IsLocked(rec.Username)
		row := RowView{
			Record:   rec,
			Visible:  true,
			Selected: m.sel.IsSelected(rec.Username),
			Locked:   rec.Locked,
		}
		if m.filtered {
			_, row.Visible = m.visible[rec.Username]
		}
		if row.Visible {
			v.Visible++
		}
		if row.Selected {
			v.Selected++
		}
		if row.Locked {
			v.Locked++
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}
