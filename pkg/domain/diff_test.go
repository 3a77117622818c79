package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	base := barSpec()

	t.Run("No Changes", func(t *testing.T) {
		assert.Nil(t, Diff(base, base.Clone()))
	})

	t.Run("Mark Change Drops Channels", func(t *testing.T) {
		d := Diff(base, SetMark(base, MarkArc))
		require.NotNil(t, d)
		require.NotNil(t, d.Mark)
		assert.Equal(t, MarkArc, *d.Mark)
		assert.Contains(t, d.Encoding, ChannelX)
		assert.Nil(t, d.Encoding[ChannelX])
	})

	t.Run("Modifier Change", func(t *testing.T) {
		d := Diff(base, SetAggregation(base, ChannelY, AggregateSum))
		require.NotNil(t, d)
		assert.Nil(t, d.Mark)
		require.NotNil(t, d.Encoding[ChannelY])
		assert.Equal(t, AggregateSum, d.Encoding[ChannelY].Aggregate)
		assert.NotContains(t, d.Encoding, ChannelX)
	})

	t.Run("Filter Added And Removed", func(t *testing.T) {
		withFilter := AddOrReplaceFilter(base, Filter{Field: "category", Type: TypeNominal, OneOf: []string{"a"}})
		d := Diff(base, withFilter)
		require.NotNil(t, d)
		require.NotNil(t, d.Filters["category"])

		d = Diff(withFilter, base)
		require.NotNil(t, d)
		assert.Contains(t, d.Filters, "category")
		assert.Nil(t, d.Filters["category"])
	})

	t.Run("Serializes Removals As Null", func(t *testing.T) {
		d := Diff(base, RemoveEncoding(base, ChannelY))
		data, err := json.Marshal(d)
		require.NoError(t, err)
		assert.JSONEq(t, `{"encoding":{"y":null}}`, string(data))
	})
}
