package surface

import (
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/widget"
)

// Key is a keyboard key name as reported by the front end.
type Key string

const (
	KeyArrowRight Key = "ArrowRight"
	KeyArrowLeft  Key = "ArrowLeft"
	KeyEnter      Key = "Enter"
	KeyBackspace  Key = "Backspace"
)

// ChartChooser lets the user pick one of the host's suggested charts.
//
// The selection index starts at 0, or -1 while there are no suggestions, and is
// kept inside the list when the host refreshes it. The index is view state and is
// never synchronized.
type ChartChooser struct {
	w      *widget.Widget
	index  int
	onDone func(domain.GraphSpec)
	onBack func()
	off    func()
}

// ChartChooserOption configures a ChartChooser.
type ChartChooserOption func(*ChartChooser)

// OnChosen is called after a suggestion has been committed.
func OnChosen(fn func(domain.GraphSpec)) ChartChooserOption {
	return func(c *ChartChooser) {
		c.onDone = fn
	}
}

// OnBack is called when the user asks to go back.
func OnBack(fn func()) ChartChooserOption {
	return func(c *ChartChooser) {
		c.onBack = fn
	}
}

// NewChartChooser opens a chooser over the widget's suggestions.
func NewChartChooser(w *widget.Widget, opts ...ChartChooserOption) *ChartChooser {
	c := &ChartChooser{w: w}
	for _, opt := range opts {
		opt(c)
	}
	c.index = domain.ClampSelection(0, len(w.Suggestions.Value()))
	c.off = w.Suggestions.OnChange(func(s []domain.GraphSpec) {
		c.index = domain.ClampSelection(c.index, len(s))
	})
	return c
}

// Suggestions returns the charts on offer.
func (c *ChartChooser) Suggestions() []domain.GraphSpec {
	return c.w.Suggestions.Value()
}

// Index returns the highlighted suggestion, -1 when there is none.
func (c *ChartChooser) Index() int {
	return c.index
}

// HandleKey applies one key press. It reports whether the key was recognized.
func (c *ChartChooser) HandleKey(k Key) bool {
	n := len(c.w.Suggestions.Value())
	switch k {
	case KeyArrowRight:
		if c.index < n-1 {
			c.index++
		}
	case KeyArrowLeft:
		if c.index > 0 {
			c.index--
		}
	case KeyEnter:
		c.Commit()
	case KeyBackspace:
		if c.onBack != nil {
			c.onBack()
		}
	default:
		return false
	}
	return true
}

// Select highlights suggestion i, as a click would. Out-of-range indexes are ignored.
func (c *ChartChooser) Select(i int) bool {
	if i < 0 || i >= len(c.w.Suggestions.Value()) {
		return false
	}
	c.index = i
	return true
}

// Commit makes the highlighted suggestion the current chart and restarts the
// history from it. It is a no-op without a selection.
func (c *ChartChooser) Commit() bool {
	suggestions := c.w.Suggestions.Value()
	if c.index < 0 || c.index >= len(suggestions) {
		c.w.Logger().Debug("Nothing selected, commit ignored", "index", c.index)
		return false
	}
	spec := suggestions[c.index]
	c.w.Commit(spec)
	if c.onDone != nil {
		c.onDone(spec)
	}
	return true
}

// Close releases the chooser's subscriptions. Its index is discarded.
func (c *ChartChooser) Close() {
	if c.off != nil {
		c.off()
		c.off = nil
	}
}
