package surface

import (
	"slices"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/widget"
)

// ColumnChooser picks the columns and the chart kind the host builds suggestions from.
type ColumnChooser struct {
	w      *widget.Widget
	onNext func()
}

// NewColumnChooser opens the column step. onNext runs when the user advances.
func NewColumnChooser(w *widget.Widget, onNext func()) *ColumnChooser {
	return &ColumnChooser{w: w, onNext: onNext}
}

// Columns returns the dataset columns published by the host.
func (c *ColumnChooser) Columns() []domain.FieldSpec {
	return c.w.Columns.Value()
}

// Selected returns the chosen column names in dataset order.
func (c *ColumnChooser) Selected() []string {
	return c.w.Selected.Value()
}

// IsSelected reports whether field is chosen.
func (c *ColumnChooser) IsSelected(field string) bool {
	return slices.Contains(c.w.Selected.Value(), field)
}

// Toggle adds or removes field from the selection. Unknown columns are ignored.
func (c *ColumnChooser) Toggle(field string) bool {
	cols := c.w.Columns.Value()
	known := slices.ContainsFunc(cols, func(f domain.FieldSpec) bool { return f.Field == field })
	if !known {
		return false
	}

	chosen := make(map[string]bool)
	for _, f := range c.w.Selected.Value() {
		chosen[f] = true
	}
	chosen[field] = !chosen[field]

	next := make([]string, 0, len(chosen))
	for _, col := range cols {
		if chosen[col.Field] {
			next = append(next, col.Field)
		}
	}
	c.w.Selected.Set(next)
	return true
}

// Kind returns the requested chart kind, empty for "any".
func (c *ColumnChooser) Kind() string {
	return c.w.Kind.Value()
}

// SetKind requests a chart kind. Unknown marks are ignored; empty clears it.
func (c *ColumnChooser) SetKind(kind string) bool {
	if kind != "" && !domain.Mark(kind).Known() {
		return false
	}
	c.w.Kind.Set(kind)
	return true
}

// CanAdvance reports whether at least one column is chosen.
func (c *ColumnChooser) CanAdvance() bool {
	return len(c.w.Selected.Value()) > 0
}

// Next moves on to the chart step when a column is chosen.
func (c *ColumnChooser) Next() bool {
	if !c.CanAdvance() {
		return false
	}
	if c.onNext != nil {
		c.onNext()
	}
	return true
}
