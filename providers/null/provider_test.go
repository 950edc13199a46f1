package null

import (
	"context"
	"errors"
	"testing"

	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namespaceSpec(name string) resource.Spec {
	return resource.Spec{Kind: resource.KindNamespace, Name: name}
}

func collectionSpec(ns, name string) resource.Spec {
	return resource.Spec{
		Kind:       resource.KindCollection,
		Name:       name,
		Namespace:  ns,
		Collection: &resource.CollectionParams{SourceURI: "s3://bucket/data.csv"},
	}
}

func TestProvider_CreateGetDelete(t *testing.T) {
	p := New()
	p.ReadyAfter["listings"] = 2
	ctx := context.Background()

	ns, err := p.Create(ctx, namespaceSpec("steam"))
	require.NoError(t, err)
	assert.Equal(t, "steam", ns.ID)

	coll, err := p.Create(ctx, collectionSpec("steam", "listings"))
	require.NoError(t, err)
	assert.Equal(t, "steam.listings", coll.ID)

	snap, err := p.Get(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, resource.StateProvisioning, snap.State)

	snap, err = p.Get(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, resource.StateReady, snap.State)
	assert.Equal(t, "READY", snap.Status)

	require.NoError(t, p.Delete(ctx, coll))
	_, err = p.Get(ctx, coll)
	assert.True(t, resource.IsNotFound(err))
	assert.False(t, p.Exists(coll))

	err = p.Delete(ctx, coll)
	assert.True(t, resource.IsNotFound(err))
}

func TestProvider_CreateConflict(t *testing.T) {
	p := New()
	ctx := context.Background()

	_, err := p.Create(ctx, namespaceSpec("steam"))
	require.NoError(t, err)

	_, err = p.Create(ctx, namespaceSpec("steam"))
	require.Error(t, err)
	assert.True(t, resource.IsAlreadyExists(err))
}

func TestProvider_CreateRequiresNamespace(t *testing.T) {
	p := New()

	_, err := p.Create(context.Background(), collectionSpec("missing", "listings"))
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))
}

func TestProvider_NamespaceNotEmpty(t *testing.T) {
	p := New()
	ctx := context.Background()

	ns, err := p.Create(ctx, namespaceSpec("steam"))
	require.NoError(t, err)
	_, err = p.Create(ctx, collectionSpec("steam", "listings"))
	require.NoError(t, err)

	err = p.Delete(ctx, ns)
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	assert.True(t, p.Exists(ns))
}

func TestProvider_AbsentAfter(t *testing.T) {
	p := New()
	p.AbsentAfter = 2
	ctx := context.Background()

	ns, err := p.Create(ctx, namespaceSpec("steam"))
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, ns))

	for i := 0; i < 2; i++ {
		snap, err := p.Get(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, resource.StateDeletionRequested, snap.State)
	}
	_, err = p.Get(ctx, ns)
	assert.True(t, resource.IsNotFound(err))
}

func TestProvider_InjectedFailure(t *testing.T) {
	p := New()
	p.Failures["create:Namespace.steam"] = resource.ErrTransport

	_, err := p.Create(context.Background(), namespaceSpec("steam"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, resource.ErrTransport))

	calls := p.CallsFor("create")
	require.Len(t, calls, 1)
	assert.Equal(t, "steam", calls[0].Name)
}

func TestProvider_AutomationIDsAreDistinct(t *testing.T) {
	p := New()
	ctx := context.Background()
	_, err := p.Create(ctx, namespaceSpec("steam"))
	require.NoError(t, err)

	spec := resource.Spec{
		Kind:      resource.KindScheduledAutomation,
		Name:      "daily",
		Namespace: "steam",
		Automation: &resource.AutomationParams{
			Schedule:  "0 16 * * *",
			QueryName: "report",
		},
	}
	a, err := p.Create(ctx, spec)
	require.NoError(t, err)
	b, err := p.Create(ctx, spec)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
