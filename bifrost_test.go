package bifrost_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/bifrost"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/observability"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, strings.TrimSpace(bifrost.Version))
}

func TestOpenMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	seed := []ports.Update{
		{Key: domain.KeyFlags, Value: json.RawMessage(`{"columns_provided":true}`), Origin: "kernel"},
	}
	m := observability.New()
	s, store, err := bifrost.OpenMemory(ctx, seed, bifrost.WithMetrics(m), bifrost.WithRetryInterval(50*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		var screen domain.Screen
		_ = s.Do(ctx, func(w *widget.Widget) { screen = w.Screen() })
		return screen == domain.ScreenChartChooser
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Do(ctx, func(w *widget.Widget) {
		w.Apply(func(spec domain.GraphSpec) domain.GraphSpec {
			return domain.SetMark(spec, domain.MarkBar)
		})
	}))

	require.Eventually(t, func() bool {
		u, err := store.Get(ctx, domain.KeyGraphSpec)
		if err != nil {
			return false
		}
		var spec domain.GraphSpec
		return json.Unmarshal(u.Value, &spec) == nil && spec.Mark == domain.MarkBar
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpenMemory_HostSpecStartsHistory(t *testing.T) {
	ctx := context.Background()
	spec := domain.SetMark(domain.GraphSpec{}, domain.MarkBar)
	spec = domain.SetEncoding(spec, domain.ChannelX, domain.FieldSpec{Field: "region", Type: domain.TypeNominal})
	spec = domain.SetEncoding(spec, domain.ChannelY, domain.FieldSpec{Field: "revenue", Type: domain.TypeQuantitative})
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	seed := []ports.Update{{Key: domain.KeyGraphSpec, Value: raw, Origin: "kernel"}}

	s, _, err := bifrost.OpenMemory(ctx, seed)
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		var mark domain.Mark
		_ = s.Do(ctx, func(w *widget.Widget) { mark = w.CurrentSpec().Mark })
		return mark == domain.MarkBar
	}, 2*time.Second, 10*time.Millisecond)

	var entries int
	var canUndo bool
	var original domain.GraphSpec
	require.NoError(t, s.Do(ctx, func(w *widget.Widget) {
		entries = len(w.History())
		original = w.CurrentSpec()
		w.Apply(func(spec domain.GraphSpec) domain.GraphSpec {
			return domain.SetAggregation(spec, domain.ChannelY, domain.AggregateMean)
		})
		canUndo = w.CanUndo()
	}))
	assert.Equal(t, 1, entries)
	require.True(t, canUndo)

	var restored domain.GraphSpec
	require.NoError(t, s.Do(ctx, func(w *widget.Widget) {
		w.Undo()
		restored = w.CurrentSpec()
	}))
	assert.True(t, restored.Equal(original))
}

func TestSession_CloseIsClean(t *testing.T) {
	s, _, err := bifrost.OpenMemory(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
