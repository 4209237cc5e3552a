package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// === Unit Tests: Manifest.Claims ===

func TestManifestClaims_CatalogOrder(t *testing.T) {
	m := Manifest{
		FieldGroups:  []Entry{{ID: "seo"}},
		UIBlocks:     []Entry{{ID: "hero"}},
		MenuEntries:  []Entry{{ID: "shop"}},
		Routes:       []string{"/a", "/b"},
		ContentTypes: []Entry{{ID: "article", Metadata: Metadata{"fields": 3}}},
	}

	claims := m.Claims()
	require.Len(t, claims, 6)
	require.Equal(t, 6, m.Len())

	var kinds []Kind
	for _, c := range claims {
		kinds = append(kinds, c.Kind)
	}
	require.Equal(t, []Kind{
		KindContentType, KindRoute, KindRoute, KindMenuEntry, KindUIBlock, KindFieldGroupExtension,
	}, kinds)
	require.Equal(t, Metadata{"fields": 3}, claims[0].Metadata)
	require.Equal(t, "/b", claims[2].ID)
}

// === Unit Tests: RegisterFromManifest ===

func TestRegisterFromManifest_AllSucceed(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.RegisterFromManifest(context.Background(), "appA", Manifest{
		ContentTypes: []Entry{{ID: "article"}},
		Routes:       []string{"/blog"},
		MenuEntries:  []Entry{{ID: "blog"}},
	})
	require.NoError(t, err)

	require.True(t, out.Success)
	require.Equal(t, "appA", out.Owner)
	require.NotEmpty(t, out.BatchID)
	require.Len(t, out.Results, 3)
	require.Empty(t, out.Errors)
	require.NotNil(t, out.Errors)
	require.Equal(t, 3, r.Stats().TotalResources)
}

func TestRegisterFromManifest_PartialFailure(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, KindContentType, "page", "appA")

	out, err := r.RegisterFromManifest(context.Background(), "appB", Manifest{
		ContentTypes: []Entry{{ID: "article"}, {ID: "page"}, {ID: "product"}},
	})
	require.NoError(t, err)

	require.False(t, out.Success)
	require.Len(t, out.Results, 3)
	require.Equal(t, ActionRegistered, out.Results[0].Action)
	require.Equal(t, ActionError, out.Results[1].Action)
	require.Equal(t, ActionRegistered, out.Results[2].Action)
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0], "page")

	for id, want := range map[string]string{"article": "appB", "page": "appA", "product": "appB"} {
		owner, ok := r.Owner(KindContentType, id)
		require.True(t, ok)
		require.Equal(t, want, owner, id)
	}
}

func TestRegisterFromManifest_IgnoredIsStillSuccess(t *testing.T) {
	r := newTestRegistry(t, WithPolicies(PolicyTable{KindUIBlock: PolicyIgnore}))
	mustRegister(t, r, KindUIBlock, "hero", "appA")

	out, err := r.RegisterFromManifest(context.Background(), "appB", Manifest{
		UIBlocks: []Entry{{ID: "hero"}},
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, ActionIgnored, out.Results[0].Action)
}

func TestRegisterFromManifest_EmptyIDIsCollected(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.RegisterFromManifest(context.Background(), "appA", Manifest{
		Routes: []string{"/a", "", "/b"},
	})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Len(t, out.Results, 3)
	require.Equal(t, ActionError, out.Results[1].Action)
	require.Equal(t, 2, r.Stats().TotalResources)
}

func TestRegisterFromManifest_EmptyManifest(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.RegisterFromManifest(context.Background(), "appA", Manifest{})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Empty(t, out.Results)
}

func TestRegisterFromManifest_EmptyOwner(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterFromManifest(context.Background(), "", Manifest{Routes: []string{"/a"}})
	require.ErrorIs(t, err, ErrEmptyOwner)
	require.Equal(t, 0, r.Stats().TotalResources)
}

func TestRegisterFromManifest_UnknownPolicyStopsBatch(t *testing.T) {
	r := newTestRegistry(t, WithPolicies(PolicyTable{KindRoute: Policy("merge")}))
	mustRegister(t, r, KindRoute, "/taken", "appA")

	out, err := r.RegisterFromManifest(context.Background(), "appB", Manifest{
		ContentTypes: []Entry{{ID: "article"}},
		Routes:       []string{"/taken"},
		MenuEntries:  []Entry{{ID: "never"}},
	})

	require.ErrorIs(t, err, ErrUnknownPolicy)
	require.False(t, out.Success)
	require.Len(t, out.Results, 2, "claims up to and including the abort are reported")
	require.Equal(t, ActionRegistered, out.Results[0].Action)

	aborted := out.Results[1]
	require.False(t, aborted.Success)
	require.Equal(t, ActionError, aborted.Action)
	require.Equal(t, KindRoute, aborted.Kind)
	require.Equal(t, "/taken", aborted.ResourceID)
	require.Contains(t, aborted.Message, "merge")
	require.Equal(t, []string{err.Error()}, out.Errors)

	routeOwner, _ := r.Owner(KindRoute, "/taken")
	require.Equal(t, "appA", routeOwner, "aborted claim leaves the owner in place")
	require.Len(t, r.ConflictHistory(), 1, "the aborted claim was audited")

	owner, _ := r.Owner(KindContentType, "article")
	require.Equal(t, "appB", owner, "earlier claims stay registered")
	_, ok := r.Get(KindMenuEntry, "never")
	require.False(t, ok)
}

func TestRegisterFromManifest_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r := newTestRegistry(t, WithTracer(provider.Tracer("test")))

	_, err := r.RegisterFromManifest(context.Background(), "appA", Manifest{Routes: []string{"/a"}})
	require.NoError(t, err)
	r.UnregisterAll(context.Background(), "appA")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "registry.RegisterFromManifest", spans[0].Name())
	require.Equal(t, "registry.UnregisterAll", spans[1].Name())
}

// === Unit Tests: ValidateManifest ===

func TestValidateManifest_DoesNotMutate(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, KindRoute, "/checkout", "appA")
	before := r.Stats()

	conflicts, err := r.ValidateManifest(context.Background(), "appB", Manifest{
		Routes:       []string{"/checkout", "/cart"},
		ContentTypes: []Entry{{ID: "article"}},
	})
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	require.Equal(t, "/checkout", conflicts[0].ResourceID)
	require.Equal(t, "appA", conflicts[0].ExistingOwner)
	require.Equal(t, before, r.Stats())
	require.Empty(t, r.ConflictHistory())
	_, ok := r.Get(KindRoute, "/cart")
	require.False(t, ok)
}

func TestValidateManifest_NoConflictsIsEmptySlice(t *testing.T) {
	r := newTestRegistry(t)

	conflicts, err := r.ValidateManifest(context.Background(), "appA", Manifest{Routes: []string{"/a"}})
	require.NoError(t, err)
	require.NotNil(t, conflicts)
	require.Empty(t, conflicts)
}

func TestValidateManifest_OwnManifestNeverConflicts(t *testing.T) {
	r := newTestRegistry(t)
	m := Manifest{Routes: []string{"/a"}, UIBlocks: []Entry{{ID: "hero"}}}

	_, err := r.RegisterFromManifest(context.Background(), "appA", m)
	require.NoError(t, err)

	conflicts, err := r.ValidateManifest(context.Background(), "appA", m)
	require.NoError(t, err)
	require.Empty(t, conflicts)
}
