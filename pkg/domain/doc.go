/*
Package domain contains the chart specification model of the Bifrost widget.

It is kept pure: no I/O, no goroutines. Everything here is a value type or a
total function over value types, so editing surfaces can call it freely from the
UI loop.

# Key Entities

  - GraphSpec: mark + per-channel encodings + per-field filters, as consumed by the renderer.
  - Edit operations (SetMark, SetEncoding, SetAggregation, ...): return a new spec and
    silently reject edits that would break a type invariant.
  - History: linear undo timeline of spec snapshots with truncate-on-push semantics.
  - Flags / Screen: onboarding prerequisites and the initial screen they select.
*/
package domain
