package domain

// HistoryEntry is an immutable snapshot of a spec with its position in the timeline.
type HistoryEntry struct {
	Sequence uint64    `json:"sequence"`
	Spec     GraphSpec `json:"spec"`
}

// History is a linear, non-branching undo timeline of spec snapshots.
//
// Undo moves a cursor backward; the entries after the cursor stay in memory but
// are unreachable, and the next Push discards them.
// The zero value is an empty history ready for use.
type History struct {
	entries []HistoryEntry
	cursor  int // index of the current entry, -1 when empty
	lastSeq uint64
	init    bool
}

// NewHistory returns a history seeded with specs, oldest first.
func NewHistory(specs ...GraphSpec) *History {
	h := &History{}
	h.Reset(specs...)
	return h
}

func (h *History) ensure() {
	if !h.init {
		h.cursor = len(h.entries) - 1
		h.init = true
	}
}

// Push records spec as the newest entry. Entries after the cursor are truncated
// first. Identical consecutive specs are recorded too.
func (h *History) Push(spec GraphSpec) HistoryEntry {
	h.ensure()
	h.entries = h.entries[:h.cursor+1]
	h.lastSeq++
	entry := HistoryEntry{Sequence: h.lastSeq, Spec: spec.Clone()}
	h.entries = append(h.entries, entry)
	h.cursor = len(h.entries) - 1
	return entry
}

// Current returns the spec at the cursor. ok is false when the history is empty.
func (h *History) Current() (spec GraphSpec, ok bool) {
	h.ensure()
	if h.cursor < 0 {
		return GraphSpec{}, false
	}
	return h.entries[h.cursor].Spec.Clone(), true
}

// CurrentEntry returns the entry at the cursor.
func (h *History) CurrentEntry() (HistoryEntry, bool) {
	h.ensure()
	if h.cursor < 0 {
		return HistoryEntry{}, false
	}
	e := h.entries[h.cursor]
	e.Spec = e.Spec.Clone()
	return e, true
}

// CanUndo reports whether there is an entry before the cursor.
func (h *History) CanUndo() bool {
	h.ensure()
	return h.cursor > 0
}

// Undo moves the cursor back one entry. It is a no-op at the first entry.
func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.cursor--
	return true
}

// Reset replaces the whole timeline with specs. Sequence numbers keep increasing
// across resets.
func (h *History) Reset(specs ...GraphSpec) {
	h.ensure()
	h.entries = make([]HistoryEntry, 0, len(specs))
	for _, s := range specs {
		h.lastSeq++
		h.entries = append(h.entries, HistoryEntry{Sequence: h.lastSeq, Spec: s.Clone()})
	}
	h.cursor = len(h.entries) - 1
}

// Len returns the number of reachable entries (up to and including the cursor).
func (h *History) Len() int {
	h.ensure()
	return h.cursor + 1
}

// Entries returns the reachable entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.ensure()
	out := make([]HistoryEntry, h.cursor+1)
	for i := range out {
		out[i] = h.entries[i]
		out[i].Spec = out[i].Spec.Clone()
	}
	return out
}

// Specs returns the reachable snapshots, oldest first. This is the sequence
// published on the spec_history key.
func (h *History) Specs() []GraphSpec {
	h.ensure()
	out := make([]GraphSpec, h.cursor+1)
	for i := range out {
		out[i] = h.entries[i].Spec.Clone()
	}
	return out
}

// Matches reports whether the reachable snapshots equal specs.
func (h *History) Matches(specs []GraphSpec) bool {
	h.ensure()
	if h.cursor+1 != len(specs) {
		return false
	}
	for i, s := range specs {
		if !h.entries[i].Spec.Equal(s) {
			return false
		}
	}
	return true
}
