/*
Package bifrost keeps a chart-authoring widget and its notebook host in sync.

The widget and the host (the notebook kernel) share a set of named JSON state
slots. Local writes show up immediately as an optimistic view and travel to the
host through an ordered outbox; host writes arrive as versioned changes. On top
of that channel the widget keeps a graph spec with an undo history, and the
surfaces in pkg/surface drive the onboarding steps: pick columns, pick one of the
suggested charts, then refine it with the pill editor.

# Architecture

  - pkg/channel: the bidirectional state channel (optimistic overlay, outbox, acks).
  - pkg/hooks: typed bindings of one state slot.
  - pkg/widget and pkg/surface: the graph spec, its history and the editing surfaces.
  - pkg/adapters: host stores (memory, Redis) and transports (direct, websocket),
    the HTTP host and the MCP tools.
  - pkg/suggest: host-side chart suggestions.

# Usage

	ctx := context.Background()
	s, store, err := bifrost.OpenMemory(ctx, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	_ = s.Do(ctx, func(w *widget.Widget) {
		w.Apply(func(spec domain.GraphSpec) domain.GraphSpec {
			return domain.SetMark(spec, domain.MarkBar)
		})
	})
	_ = store // the host side; Put on it to play the kernel
*/
package bifrost
