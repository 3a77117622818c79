package hooks_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/bifrost/internal/testutils"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barSpec() domain.GraphSpec {
	return domain.GraphSpec{
		Mark: domain.MarkBar,
		Encoding: map[string]domain.Encoding{
			domain.ChannelX: {FieldSpec: domain.FieldSpec{Field: "category", Type: domain.TypeNominal}},
			domain.ChannelY: {FieldSpec: domain.FieldSpec{Field: "price", Type: domain.TypeQuantitative}, Aggregate: domain.AggregateMean},
		},
	}
}

func TestState_SetUpdatesSynchronously(t *testing.T) {
	h := testutils.NewHarness(t)
	spec := hooks.Bind[domain.GraphSpec](h.Client, domain.KeyGraphSpec)

	var changes []domain.GraphSpec
	spec.OnChange(func(s domain.GraphSpec) { changes = append(changes, s) })

	spec.Set(barSpec())

	assert.True(t, spec.Value().Equal(barSpec()))
	require.Len(t, changes, 1)
	assert.Equal(t, 1, h.Client.QueueDepth())

	h.Sync()
	assert.Equal(t, 1, h.Writes(domain.KeyGraphSpec))
	assert.Len(t, changes, 1, "own ack does not notify again")
}

func TestState_SetEqualValueIsNoop(t *testing.T) {
	h := testutils.NewHarness(t)
	spec := hooks.Bind[domain.GraphSpec](h.Client, domain.KeyGraphSpec)
	spec.Set(barSpec())
	h.Sync()

	calls := 0
	spec.OnChange(func(domain.GraphSpec) { calls++ })

	spec.Set(barSpec())
	h.Sync()

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, h.Writes(domain.KeyGraphSpec))
}

func TestState_RemoteChangeNotifies(t *testing.T) {
	h := testutils.NewHarness(t)
	kind := hooks.Bind[string](h.Client, domain.KeyGraphKind)

	var got []string
	kind.OnChange(func(v string) { got = append(got, v) })

	h.HostSet(domain.KeyGraphKind, "line")
	h.HostSet(domain.KeyGraphKind, "line")
	h.HostSet(domain.KeyGraphKind, "area")

	assert.Equal(t, []string{"line", "area"}, got)
	assert.Equal(t, "area", kind.Value())
}

func TestState_SeededFromCurrentView(t *testing.T) {
	h := testutils.NewHarness(t)
	h.HostSet(domain.KeyFlags, domain.Flags{domain.FlagColumnsProvided: true})

	flags := hooks.Bind[domain.Flags](h.Client, domain.KeyFlags, hooks.ReadOnly())
	assert.True(t, flags.Value()[domain.FlagColumnsProvided])
}

func TestState_ReadOnlyIgnoresSet(t *testing.T) {
	h := testutils.NewHarness(t)
	flags := hooks.Bind[domain.Flags](h.Client, domain.KeyFlags, hooks.ReadOnly())

	flags.Set(domain.Flags{domain.FlagKindProvided: true})
	h.Sync()

	assert.Empty(t, flags.Value())
	assert.Equal(t, 0, h.Writes(domain.KeyFlags))
}

func TestState_TransformWrapsGraphData(t *testing.T) {
	h := testutils.NewHarness(t)
	data := hooks.Bind[domain.GraphData](h.Client, domain.KeyGraphData,
		hooks.ReadOnly(), hooks.WithTransform(hooks.WrapAs("data")))

	assert.True(t, data.Value().IsEmpty())

	h.HostSet(domain.KeyGraphData, []map[string]any{{"category": "a", "price": 1.5}})

	require.False(t, data.Value().IsEmpty())
	assert.JSONEq(t, `[{"category":"a","price":1.5}]`, string(data.Value().Data))
}

func TestState_UndecodableValueKeepsPrevious(t *testing.T) {
	h := testutils.NewHarness(t)
	kind := hooks.Bind[string](h.Client, domain.KeyGraphKind)
	h.HostSet(domain.KeyGraphKind, "bar")

	h.HostSet(domain.KeyGraphKind, map[string]int{"not": 1})

	assert.Equal(t, "bar", kind.Value())
}

func TestState_CloseReleasesSubscription(t *testing.T) {
	h := testutils.NewHarness(t)
	kind := hooks.Bind[string](h.Client, domain.KeyGraphKind)
	calls := 0
	kind.OnChange(func(string) { calls++ })
	assert.Equal(t, 1, h.Client.Subscribers(domain.KeyGraphKind))

	kind.Close()
	kind.Close()
	h.HostSet(domain.KeyGraphKind, "bar")
	kind.Set("line")

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, h.Client.Subscribers(domain.KeyGraphKind))
	assert.Equal(t, 0, h.Writes(domain.KeyGraphKind))
}

func TestState_UnsubscribeListener(t *testing.T) {
	h := testutils.NewHarness(t)
	kind := hooks.Bind[string](h.Client, domain.KeyGraphKind)
	calls := 0
	off := kind.OnChange(func(string) { calls++ })

	kind.Set("bar")
	off()
	kind.Set("line")

	assert.Equal(t, 1, calls)
}

func TestWrapAs(t *testing.T) {
	wrap := hooks.WrapAs("data")
	assert.Nil(t, wrap(nil))
	assert.JSONEq(t, `{"data":[1,2]}`, string(wrap(json.RawMessage(`[1,2]`))))
}
