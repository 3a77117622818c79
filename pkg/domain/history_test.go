package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specWithMark(m Mark) GraphSpec { return GraphSpec{Mark: m} }

func TestHistory_TruncationOnPush(t *testing.T) {
	a, b, c := specWithMark(MarkBar), specWithMark(MarkLine), specWithMark(MarkArea)

	h := NewHistory()
	h.Push(a)
	h.Push(b)
	require.True(t, h.Undo())
	h.Push(c)

	cur, ok := h.Current()
	require.True(t, ok)
	assert.True(t, cur.Equal(c))

	// b is gone: undoing walks straight back to a.
	require.True(t, h.Undo())
	cur, _ = h.Current()
	assert.True(t, cur.Equal(a))
	assert.False(t, h.Undo())
	assert.Equal(t, []GraphSpec{a}, h.Specs())
}

func TestHistory_SequencesIncrease(t *testing.T) {
	h := NewHistory()
	e1 := h.Push(specWithMark(MarkBar))
	e2 := h.Push(specWithMark(MarkBar))
	h.Undo()
	e3 := h.Push(specWithMark(MarkLine))

	assert.Less(t, e1.Sequence, e2.Sequence)
	assert.Less(t, e2.Sequence, e3.Sequence)

	h.Reset(specWithMark(MarkTick))
	entry, ok := h.CurrentEntry()
	require.True(t, ok)
	assert.Greater(t, entry.Sequence, e3.Sequence)
}

func TestHistory_PushIsNotDeduplicated(t *testing.T) {
	h := NewHistory()
	h.Push(specWithMark(MarkBar))
	h.Push(specWithMark(MarkBar))
	assert.Equal(t, 2, h.Len())
}

func TestHistory_Empty(t *testing.T) {
	var h History
	_, ok := h.Current()
	assert.False(t, ok)
	assert.False(t, h.CanUndo())
	assert.False(t, h.Undo())
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Specs())

	h.Push(specWithMark(MarkBar))
	assert.Equal(t, 1, h.Len())
	assert.False(t, h.CanUndo())
}

func TestHistory_ResetAndMatches(t *testing.T) {
	h := NewHistory(specWithMark(MarkBar), specWithMark(MarkLine))
	assert.Equal(t, 2, h.Len())
	assert.True(t, h.Matches([]GraphSpec{specWithMark(MarkBar), specWithMark(MarkLine)}))

	h.Undo()
	assert.True(t, h.Matches([]GraphSpec{specWithMark(MarkBar)}))
	assert.Len(t, h.Entries(), 1)
}

func TestHistory_SnapshotsAreIsolated(t *testing.T) {
	spec := barSpec()
	h := NewHistory()
	h.Push(spec)
	spec.Encoding[ChannelX] = Encoding{FieldSpec: price}

	cur, _ := h.Current()
	assert.Equal(t, category, cur.Encoding[ChannelX].FieldSpec)
}
