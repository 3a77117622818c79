package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/observability"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ChannelHooks(t *testing.T) {
	m := observability.New()
	hooks := m.ChannelHooks()

	hooks.OnSend(domain.KeyGraphSpec)
	hooks.OnSend(domain.KeyGraphSpec)
	hooks.OnSendError(domain.KeyGraphKind, errors.New("boom"))
	hooks.OnQueued(3)
	hooks.OnRemoteChange(domain.KeyColumns, false)
	hooks.OnRemoteChange(domain.KeyGraphSpec, true)

	body := scrape(t, m)
	assert.Contains(t, body, `bifrost_channel_sends_total{key="graph_spec"} 2`)
	assert.Contains(t, body, `bifrost_channel_send_errors_total{key="graph_kind"} 1`)
	assert.Contains(t, body, `bifrost_channel_outbox_depth_at_enqueue 3`)
	assert.Contains(t, body, `bifrost_channel_remote_changes_total{key="columns",own="false"} 1`)
	assert.Contains(t, body, `bifrost_channel_remote_changes_total{key="graph_spec",own="true"} 1`)
}

func TestMetrics_TrackOutbox(t *testing.T) {
	m := observability.New()
	depth := 4
	require.NoError(t, m.TrackOutbox(func() int { return depth }))
	assert.Error(t, m.TrackOutbox(func() int { return 0 }))

	assert.Contains(t, scrape(t, m), "bifrost_channel_outbox_depth 4")
	depth = 0
	assert.Contains(t, scrape(t, m), "bifrost_channel_outbox_depth 0")
}

func TestMetrics_InstrumentStore(t *testing.T) {
	m := observability.New()
	inner := memory.NewStore()
	store := m.InstrumentStore(inner)
	ctx := context.Background()

	_, err := store.Put(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`)})
	require.NoError(t, err)
	_, err = store.Put(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`nope`)})
	require.Error(t, err)

	u, err := store.Get(ctx, domain.KeyGraphKind)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.Version)

	count, err := testutil.GatherAndCount(m.Registry(), "bifrost_host_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	body := scrape(t, m)
	assert.Contains(t, body, `bifrost_host_writes_total{key="graph_kind"} 1`)
	assert.Contains(t, body, `bifrost_host_write_errors_total{key="graph_kind"} 1`)
	assert.Contains(t, body, "bifrost_host_write_duration_seconds_count 2")

	require.NoError(t, store.Close())
	_, err = inner.Put(ctx, ports.Update{Key: "k", Value: json.RawMessage(`1`)})
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(body))
}
