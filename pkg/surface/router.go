// Package surface implements the editing surfaces of the chart widget as plain
// state machines: no rendering, only the state the front end draws from.
package surface

import (
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/widget"
)

// Router tracks which onboarding step is on screen and owns the surface of that step.
// Leaving a step closes its surface.
type Router struct {
	w        *widget.Widget
	screen   domain.Screen
	onChange func(domain.Screen)

	columns *ColumnChooser
	chart   *ChartChooser
	editor  *PillEditor
}

// NewRouter starts on the screen implied by the host flags.
func NewRouter(w *widget.Widget, onChange func(domain.Screen)) *Router {
	r := &Router{w: w, onChange: onChange}
	r.enter(w.Screen())
	return r
}

// Screen returns the step on screen.
func (r *Router) Screen() domain.Screen {
	return r.screen
}

// Columns returns the column chooser, nil when it is not on screen.
func (r *Router) Columns() *ColumnChooser {
	return r.columns
}

// Chart returns the chart chooser, nil when it is not on screen.
func (r *Router) Chart() *ChartChooser {
	return r.chart
}

// Editor returns the pill editor, nil when it is not on screen.
func (r *Router) Editor() *PillEditor {
	return r.editor
}

// Back returns to the previous step. Leaving the editor discards its history.
func (r *Router) Back() bool {
	switch r.screen {
	case domain.ScreenChartChooser:
		r.enter(domain.ScreenColumnChooser)
	case domain.ScreenVisualize:
		r.w.ClearHistory()
		r.enter(domain.ScreenChartChooser)
	default:
		return false
	}
	return true
}

func (r *Router) enter(screen domain.Screen) {
	r.leave()
	r.screen = screen
	switch screen {
	case domain.ScreenColumnChooser:
		r.columns = NewColumnChooser(r.w, func() { r.enter(domain.ScreenChartChooser) })
	case domain.ScreenChartChooser:
		r.chart = NewChartChooser(r.w,
			OnChosen(func(domain.GraphSpec) { r.enter(domain.ScreenVisualize) }),
			OnBack(func() { r.Back() }),
		)
	case domain.ScreenVisualize:
		r.editor = NewPillEditor(r.w)
	}
	if r.onChange != nil {
		r.onChange(screen)
	}
}

func (r *Router) leave() {
	if r.chart != nil {
		r.chart.Close()
	}
	r.columns, r.chart, r.editor = nil, nil, nil
}

// Close tears down the active surface.
func (r *Router) Close() {
	r.leave()
}
