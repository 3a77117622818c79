// Package widget holds the state shared by every editing surface of one chart widget.
//
// A Widget binds the remote keys to typed hooks and owns the undo history. Surfaces
// receive the Widget explicitly; there is no ambient model. Every method must run on
// the widget's loop.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/hooks"
	"github.com/aretw0/bifrost/pkg/ports"
)

// Widget is the explicit shared state object of a chart widget.
type Widget struct {
	client   *channel.Client
	logger   *slog.Logger
	renderer ports.Renderer

	Flags       *hooks.State[domain.Flags]
	Suggestions *hooks.State[[]domain.GraphSpec]
	Data        *hooks.State[domain.GraphData]
	Spec        *hooks.State[domain.GraphSpec]
	SpecHistory *hooks.State[[]domain.GraphSpec]
	Columns     *hooks.State[[]domain.FieldSpec]
	Selected    *hooks.State[[]string]
	Kind        *hooks.State[string]

	history     *domain.History
	offHistory  func()
	offSpec     func()
	specWatches []func(domain.GraphSpec)
	editing     bool
}

// Option configures a Widget.
type Option func(*Widget)

// WithLogger configures a logger for the Widget.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Widget) {
		w.logger = logger
	}
}

// WithRenderer sets the chart renderer used by Display.
func WithRenderer(r ports.Renderer) Option {
	return func(w *Widget) {
		w.renderer = r
	}
}

// New binds a widget to client. The history is seeded from spec_history, or from
// graph_spec when the host has no history yet.
func New(client *channel.Client, opts ...Option) *Widget {
	w := &Widget{
		client: client,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	hl := hooks.WithLogger(w.logger)
	w.Flags = hooks.Bind[domain.Flags](client, domain.KeyFlags, hooks.ReadOnly(), hl)
	w.Suggestions = hooks.Bind[[]domain.GraphSpec](client, domain.KeySuggestedGraphs, hooks.ReadOnly(), hl)
	w.Data = hooks.Bind[domain.GraphData](client, domain.KeyGraphData, hooks.ReadOnly(), hooks.WithTransform(hooks.WrapAs("data")), hl)
	w.Spec = hooks.Bind[domain.GraphSpec](client, domain.KeyGraphSpec, hl)
	w.SpecHistory = hooks.Bind[[]domain.GraphSpec](client, domain.KeySpecHistory, hl)
	w.Columns = hooks.Bind[[]domain.FieldSpec](client, domain.KeyColumns, hooks.ReadOnly(), hl)
	w.Selected = hooks.Bind[[]string](client, domain.KeySelectedColumns, hl)
	w.Kind = hooks.Bind[string](client, domain.KeyGraphKind, hl)

	w.history = domain.NewHistory(w.SpecHistory.Value()...)
	if w.history.Len() == 0 {
		if spec := w.Spec.Value(); spec.Mark != "" {
			w.history.Reset(spec)
		}
	}

	w.offHistory = w.SpecHistory.OnChange(w.onRemoteHistory)
	w.offSpec = w.Spec.OnChange(w.onSpec)
	return w
}

// onSpec seeds an empty history from a graph_spec that arrived from the host,
// then fans the change out.
func (w *Widget) onSpec(spec domain.GraphSpec) {
	if !w.editing && w.history.Len() == 0 && spec.Mark != "" {
		w.logger.Debug("Seeding history from host spec", "spec", spec.Describe())
		w.history.Reset(spec)
	}
	for _, fn := range slices.Clone(w.specWatches) {
		fn(spec)
	}
}

// setSpec writes a locally edited spec.
func (w *Widget) setSpec(spec domain.GraphSpec) {
	w.editing = true
	defer func() { w.editing = false }()
	w.Spec.Set(spec)
}

// Client returns the channel the widget is bound to.
func (w *Widget) Client() *channel.Client {
	return w.client
}

// Logger returns the widget logger, for surfaces built on top of it.
func (w *Widget) Logger() *slog.Logger {
	return w.logger
}

// OnSpecChange registers fn for graph_spec changes, local or remote.
func (w *Widget) OnSpecChange(fn func(domain.GraphSpec)) func() {
	w.specWatches = append(w.specWatches, fn)
	idx := len(w.specWatches) - 1
	removed := false
	return func() {
		if removed {
			return
		}
		removed = true
		w.specWatches[idx] = func(domain.GraphSpec) {}
	}
}

// onRemoteHistory adopts a history published by someone else. Our own
// publications already match the local timeline.
func (w *Widget) onRemoteHistory(specs []domain.GraphSpec) {
	if w.history.Matches(specs) {
		return
	}
	w.logger.Debug("Adopting remote history", "entries", len(specs))
	w.history.Reset(specs...)
}

// CurrentSpec returns the spec being edited.
func (w *Widget) CurrentSpec() domain.GraphSpec {
	return w.Spec.Value()
}

// Apply runs a spec edit. Effective edits update graph_spec and push a history
// entry; edits that change nothing are dropped. It reports whether the spec changed.
func (w *Widget) Apply(edit func(domain.GraphSpec) domain.GraphSpec) bool {
	cur := w.Spec.Value()
	next := edit(cur)
	if next.Equal(cur) {
		w.logger.Debug("Edit had no effect", "spec", cur.Describe())
		return false
	}
	if w.history.Len() == 0 && cur.Mark != "" {
		w.history.Reset(cur)
	}
	w.setSpec(next)
	w.history.Push(next)
	w.publishHistory()
	return true
}

// Commit makes spec the current chart and restarts the history from it.
func (w *Widget) Commit(spec domain.GraphSpec) {
	w.setSpec(spec.Clone())
	w.history.Reset(spec)
	w.publishHistory()
}

// Undo restores the previous history entry. It is a no-op at the first entry.
func (w *Widget) Undo() bool {
	if !w.history.Undo() {
		return false
	}
	spec, _ := w.history.Current()
	w.setSpec(spec)
	w.publishHistory()
	return true
}

// CanUndo reports whether Undo would do anything.
func (w *Widget) CanUndo() bool {
	return w.history.CanUndo()
}

// ClearHistory empties the timeline, used when the user leaves the editor.
func (w *Widget) ClearHistory() {
	w.history.Reset()
	w.publishHistory()
}

// History returns the reachable history entries, oldest first.
func (w *Widget) History() []domain.HistoryEntry {
	return w.history.Entries()
}

func (w *Widget) publishHistory() {
	w.SpecHistory.Set(w.history.Specs())
}

// Screen returns the first screen to show for the current flags.
func (w *Widget) Screen() domain.Screen {
	return domain.InitialScreen(w.Flags.Value())
}

// Display hands the current spec and data to the renderer. Specs that are not
// renderable are withheld; it reports whether the renderer was called.
func (w *Widget) Display(ctx context.Context) (bool, error) {
	spec := w.Spec.Value()
	if !domain.IsRenderable(spec) {
		w.logger.Debug("Spec not renderable, withholding", "spec", spec.Describe())
		return false, nil
	}
	if w.renderer == nil {
		return false, nil
	}
	if err := w.renderer.Render(ctx, spec, w.Data.Value()); err != nil {
		return true, fmt.Errorf("render %s: %w", spec.Mark, err)
	}
	return true, nil
}

// Close releases every subscription. The history is not persisted.
func (w *Widget) Close() {
	if w.offHistory != nil {
		w.offHistory()
		w.offSpec()
	}
	w.specWatches = nil
	w.Flags.Close()
	w.Suggestions.Close()
	w.Data.Close()
	w.Spec.Close()
	w.SpecHistory.Close()
	w.Columns.Close()
	w.Selected.Close()
	w.Kind.Close()
}
