package surface

import (
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/widget"
)

// Segment is the part of a pill the user is editing.
type Segment string

const (
	SegmentNone     Segment = ""
	SegmentField    Segment = "field"
	SegmentEncoding Segment = "encoding"
	SegmentFilter   Segment = "filter"
)

// Pill is the view model of one bound channel.
type Pill struct {
	Position    int              `json:"position"`
	Channel     string           `json:"channel"`
	Field       string           `json:"field"`
	Type        domain.FieldType `json:"type"`
	Filters     []string         `json:"filters,omitempty"`
	Aggregation string           `json:"aggregation,omitempty"`
	Scale       string           `json:"scale,omitempty"`
	Selected    Segment          `json:"selected,omitempty"`
}

// PillEditor edits the current chart one channel at a time.
// Every effective edit goes through the widget and lands in the history.
type PillEditor struct {
	w       *widget.Widget
	channel string
	segment Segment
}

// NewPillEditor opens the editor on w.
func NewPillEditor(w *widget.Widget) *PillEditor {
	return &PillEditor{w: w}
}

// Spec returns the chart being edited.
func (p *PillEditor) Spec() domain.GraphSpec {
	return p.w.CurrentSpec()
}

// Pills lists one pill per bound channel, required channels first.
func (p *PillEditor) Pills() []Pill {
	spec := p.w.CurrentSpec()
	channels := spec.Channels()
	pills := make([]Pill, 0, len(channels))
	for i, ch := range channels {
		enc := spec.Encoding[ch]
		pill := Pill{
			Position:    i,
			Channel:     ch,
			Field:       enc.Field,
			Type:        enc.Type,
			Aggregation: enc.Aggregate,
			Scale:       enc.Scale,
		}
		for _, f := range spec.FiltersFor(enc.Field) {
			pill.Filters = append(pill.Filters, f.String())
		}
		if ch == p.channel {
			pill.Selected = p.segment
		}
		pills = append(pills, pill)
	}
	return pills
}

// Select focuses a segment of the pill on channel. SegmentNone clears the focus.
func (p *PillEditor) Select(channel string, seg Segment) {
	if seg == SegmentNone {
		p.channel, p.segment = "", SegmentNone
		return
	}
	p.channel, p.segment = channel, seg
}

// Fields returns the columns a pill can be bound to.
func (p *PillEditor) Fields() []domain.FieldSpec {
	return p.w.Columns.Value()
}

// Close unbinds channel.
func (p *PillEditor) Close(channel string) bool {
	if p.channel == channel {
		p.Select("", SegmentNone)
	}
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.RemoveEncoding(s, channel)
	})
}

// ChangeField binds field to channel.
func (p *PillEditor) ChangeField(channel string, field domain.FieldSpec) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.SetEncoding(s, channel, field)
	})
}

// MoveChannel moves the binding of from onto to. If to is already bound the two
// bindings swap.
func (p *PillEditor) MoveChannel(from, to string) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		src, ok := s.Encoding[from]
		if !ok || from == to || !s.Mark.AllowsChannel(to) {
			return s
		}
		dst, swap := s.Encoding[to]

		next := domain.RemoveEncoding(s, from)
		next = bind(next, to, src)
		if swap {
			next = bind(next, from, dst)
		}
		return next
	})
}

func bind(s domain.GraphSpec, channel string, enc domain.Encoding) domain.GraphSpec {
	s = domain.SetEncoding(s, channel, enc.FieldSpec)
	s = domain.SetAggregation(s, channel, enc.Aggregate)
	return domain.SetScale(s, channel, enc.Scale)
}

// SetAggregation sets or, with an empty op, clears the aggregation on channel.
func (p *PillEditor) SetAggregation(channel, op string) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.SetAggregation(s, channel, op)
	})
}

// SetScale sets or, with an empty scale, clears the scale on channel.
func (p *PillEditor) SetScale(channel, scale string) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.SetScale(s, channel, scale)
	})
}

// SetFilter adds a filter or replaces the one on the same field.
func (p *PillEditor) SetFilter(f domain.Filter) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.AddOrReplaceFilter(s, f)
	})
}

// RemoveFilter drops the filter on field.
func (p *PillEditor) RemoveFilter(field string) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.RemoveFilter(s, field)
	})
}

// SetMark changes the chart kind.
func (p *PillEditor) SetMark(mark domain.Mark) bool {
	return p.w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
		return domain.SetMark(s, mark)
	})
}

// Undo reverts the last edit.
func (p *PillEditor) Undo() bool {
	return p.w.Undo()
}

// CanUndo reports whether there is an edit to revert.
func (p *PillEditor) CanUndo() bool {
	return p.w.CanUndo()
}
