package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arbiter/internal/registry"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(WithRegistry(reg), WithConstLabels(prometheus.Labels{"instance": "test"})), reg
}

func TestObserve_CountsByKindAndAction(t *testing.T) {
	c, _ := newTestCollector(t)

	c.Observe(registry.Event{Type: registry.EventRegistered, Kind: registry.KindRoute})
	c.Observe(registry.Event{Type: registry.EventRegistered, Kind: registry.KindRoute})
	c.Observe(registry.Event{Type: registry.EventRejected, Kind: registry.KindContentType, Action: registry.ActionError})
	c.Observe(registry.Event{Type: registry.EventConflict, Kind: registry.KindContentType})
	c.Observe(registry.Event{Type: registry.EventUnregistered, Kind: registry.KindUIBlock})

	require.Equal(t, 2.0, testutil.ToFloat64(c.registrations.WithLabelValues("route", "registered")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues("content-type", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.conflicts.WithLabelValues("content-type")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.unregistrations.WithLabelValues("ui-block")))
}

func TestCollector_WiredToRegistry(t *testing.T) {
	c, promReg := newTestCollector(t)
	r := registry.New(
		registry.WithPolicies(registry.PolicyTable{registry.KindRoute: registry.PolicyOverride}),
		registry.WithObserver(c),
	)
	t.Cleanup(r.Close)
	require.NoError(t, c.Track(r))

	_, err := r.RegisterFromManifest(context.Background(), "appA", registry.Manifest{
		Routes:   []string{"/a", "/b"},
		UIBlocks: []registry.Entry{{ID: "hero"}},
	})
	require.NoError(t, err)
	_, err = r.Register(registry.KindRoute, "/a", "appB", nil)
	require.NoError(t, err)

	expected := `
# HELP arbiter_resources Live registrations by resource kind
# TYPE arbiter_resources gauge
arbiter_resources{instance="test",kind="content-type"} 0
arbiter_resources{instance="test",kind="field-group-extension"} 0
arbiter_resources{instance="test",kind="menu-entry"} 0
arbiter_resources{instance="test",kind="route"} 2
arbiter_resources{instance="test",kind="ui-block"} 1
# HELP arbiter_conflicts_total Ownership conflicts detected by resource kind
# TYPE arbiter_conflicts_total counter
arbiter_conflicts_total{instance="test",kind="route"} 1
`
	require.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected),
		"arbiter_resources", "arbiter_conflicts_total"))

	require.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues("route", "overridden")))

	r.UnregisterAll(context.Background(), "appA")
	require.Equal(t, 1.0, testutil.ToFloat64(c.unregistrations.WithLabelValues("route")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.unregistrations.WithLabelValues("ui-block")))
}

func TestObserve_ActionLabelsMatchMergeResults(t *testing.T) {
	c, _ := newTestCollector(t)
	r := registry.New(
		registry.WithPolicies(registry.PolicyTable{registry.KindMenuEntry: registry.PolicyFallback}),
		registry.WithObserver(c),
	)
	t.Cleanup(r.Close)

	res, err := r.Register(registry.KindContentType, "article", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, registry.ActionRegistered, res.Action)
	res, err = r.Register(registry.KindContentType, "article", "appB", nil)
	require.NoError(t, err)
	require.Equal(t, registry.ActionError, res.Action)

	fallback, err := r.Register(registry.KindMenuEntry, "blog", "appA", nil)
	require.NoError(t, err)
	require.Equal(t, registry.ActionRegistered, fallback.Action)
	fallback, err = r.Register(registry.KindMenuEntry, "blog", "appB", nil)
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues("content-type", string(registry.ActionError))))
	require.Equal(t, 0.0, testutil.ToFloat64(c.registrations.WithLabelValues("content-type", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.registrations.WithLabelValues("menu-entry", string(fallback.Action))))
}

func TestTrack_TwiceFails(t *testing.T) {
	c, _ := newTestCollector(t)
	r := registry.New()
	t.Cleanup(r.Close)

	require.NoError(t, c.Track(r))
	require.Error(t, c.Track(r))
}

func TestWithNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("ext"))
	c.Observe(registry.Event{Type: registry.EventConflict, Kind: registry.KindRoute})

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "ext_conflicts_total", families[0].GetName())
}
