package engine

import (
	"context"
	"testing"

	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/picklr-io/reportchain/providers/null"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handleNames(handles []resource.Handle) []string {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name
	}
	return names
}

func createdNames(p *null.Provider) []string {
	var names []string
	for _, c := range p.CallsFor("create") {
		names = append(names, c.Name)
	}
	return names
}

func TestProvision_SteamReport(t *testing.T) {
	p := null.New()
	p.ReadyAfter["steam_product_listings"] = 3
	e, w := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.NoError(t, err)

	assert.Equal(t, []string{"steam_data", "steam_product_listings", "report", "daily_report"}, handleNames(result.Handles))

	var collectionGets int
	for _, c := range p.CallsFor("get") {
		if c.Kind == resource.KindCollection {
			collectionGets++
		}
	}
	assert.Equal(t, 3, collectionGets)
	assert.Equal(t, 2, w.waits)

	require.Len(t, result.Records, 4)
	assert.Equal(t, OutcomeCreated, result.Records[0].Outcome)
	assert.Equal(t, OutcomeReady, result.Records[1].Outcome)
	assert.Equal(t, 3, result.Records[1].Attempts)
	assert.Equal(t, OutcomeCreated, result.Records[2].Outcome)
	assert.Equal(t, OutcomeCreated, result.Records[3].Outcome)
	for _, rec := range result.Records {
		assert.Equal(t, resource.StateReady, rec.State, rec.Address)
	}
}

func TestProvision_DistinctIDsInInputOrder(t *testing.T) {
	p := null.New()
	e, _ := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.NoError(t, err)
	require.Len(t, result.Handles, 4)

	seen := make(map[string]bool)
	for i, h := range result.Handles {
		assert.Equal(t, steamSpecs()[i].Kind, h.Kind)
		assert.NotEmpty(t, h.ID)
		assert.False(t, seen[h.ID], "duplicate id %s", h.ID)
		seen[h.ID] = true
	}
	assert.Equal(t, "steam_data", result.Handles[1].Namespace, "placeholder resolved before create")
}

func TestProvision_AbortsOnValidationError(t *testing.T) {
	p := null.New()
	p.Failures["create:Collection.steam_product_listings"] = resource.ErrValidation
	e, _ := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))

	require.Len(t, result.Handles, 1)
	assert.Equal(t, "steam_data", result.Handles[0].Name)
	assert.Equal(t, []string{"steam_data", "steam_product_listings"}, createdNames(p))

	require.Len(t, result.Records, 2)
	assert.Equal(t, OutcomeFailed, result.Records[1].Outcome)
	assert.NotEmpty(t, result.Records[1].Error)
}

func TestProvision_ConflictSurfaced(t *testing.T) {
	p := null.New()
	_, err := p.Create(context.Background(), resource.Spec{Kind: resource.KindNamespace, Name: "steam_data"})
	require.NoError(t, err)
	e, _ := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.Error(t, err)
	assert.True(t, resource.IsAlreadyExists(err))
	assert.Empty(t, result.Handles)
}

func TestProvision_InvalidSequenceMakesNoCalls(t *testing.T) {
	specs := steamSpecs()
	specs[2].Query.SQL = ""
	p := null.New()
	e, _ := newTestEngine(p)

	result, err := e.Provision(context.Background(), specs)
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	assert.Empty(t, result.Handles)
	assert.Empty(t, p.Calls())
}

func TestProvision_Empty(t *testing.T) {
	p := null.New()
	e, _ := newTestEngine(p)

	result, err := e.Provision(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Handles)
	assert.Empty(t, result.Records)
	assert.Empty(t, p.Calls())
}

func TestProvision_ReadinessTimeout(t *testing.T) {
	p := null.New()
	p.ReadyAfter["steam_product_listings"] = 10
	e, w := newTestEngine(p, WithReadyPolicy(PollPolicy{MaxAttempts: 3}))

	result, err := e.Provision(context.Background(), steamSpecs())
	require.ErrorIs(t, err, ErrReadinessTimeout)

	assert.Equal(t, []string{"steam_data", "steam_product_listings"}, handleNames(result.Handles))
	assert.Equal(t, 2, w.waits)
	require.Len(t, result.Records, 2)
	assert.Equal(t, OutcomeTimedOut, result.Records[1].Outcome)
	assert.Equal(t, resource.StateFailed, result.Records[1].State)
	assert.Equal(t, 3, result.Records[1].Attempts)
	assert.Equal(t, []string{"steam_data", "steam_product_listings"}, createdNames(p))
}

func TestProvision_ContinueOnTimeout(t *testing.T) {
	p := null.New()
	p.ReadyAfter["steam_product_listings"] = 10
	e, _ := newTestEngine(p,
		WithReadyPolicy(PollPolicy{MaxAttempts: 2}),
		WithContinueOnTimeout(true),
	)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.NoError(t, err)
	require.Len(t, result.Handles, 4)
	assert.Equal(t, OutcomeTimedOut, result.Records[1].Outcome)
	assert.Equal(t, resource.StateProvisioning, result.Records[1].State)
}

func TestProvision_GetErrorDuringReadiness(t *testing.T) {
	p := null.New()
	p.Failures["get:Collection.steam_product_listings"] = resource.ErrTransport
	e, w := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.Error(t, err)
	assert.True(t, resource.IsTransport(err))
	assert.Equal(t, 0, w.waits, "transport errors are not retried")

	assert.Len(t, result.Handles, 2, "the created collection is returned for cleanup")
	assert.Equal(t, OutcomeFailed, result.Records[1].Outcome)
}

func TestProvision_CollectionVanishesDuringReadiness(t *testing.T) {
	p := null.New()
	p.Failures["get:Collection.steam_product_listings"] = resource.ErrNotFound
	e, w := newTestEngine(p)

	result, err := e.Provision(context.Background(), steamSpecs())
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))
	assert.Equal(t, 0, w.waits)

	assert.Len(t, result.Handles, 2)
	require.Len(t, result.Records, 2)
	assert.Equal(t, OutcomeFailed, result.Records[1].Outcome)
	assert.Equal(t, resource.StateFailed, result.Records[1].State)
	assert.Equal(t, []string{"steam_data", "steam_product_listings"}, createdNames(p))
}

type failedStateClient struct {
	*null.Provider
}

func (c failedStateClient) Get(ctx context.Context, h resource.Handle) (resource.Snapshot, error) {
	if h.Kind == resource.KindCollection {
		return resource.Snapshot{Handle: h, State: resource.StateFailed, Status: "ERROR"}, nil
	}
	return c.Provider.Get(ctx, h)
}

func TestProvision_BackendReportsFailure(t *testing.T) {
	p := null.New()
	e, _ := newTestEngine(failedStateClient{p})

	result, err := e.Provision(context.Background(), steamSpecs())
	require.ErrorIs(t, err, ErrResourceFailed)
	assert.Contains(t, err.Error(), "ERROR")
	assert.Len(t, result.Handles, 2)
}

func TestProvision_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := null.New()
	e, _ := newTestEngine(p)

	result, err := e.Provision(ctx, steamSpecs())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Handles)
	assert.Empty(t, p.Calls())
}

func TestProvision_Events(t *testing.T) {
	var events []Event
	p := null.New()
	p.ReadyAfter["steam_product_listings"] = 2
	e, _ := newTestEngine(p, WithEventCallback(func(ev Event) {
		events = append(events, ev)
	}))

	_, err := e.Provision(context.Background(), steamSpecs())
	require.NoError(t, err)

	// create started/completed for all four, plus await started/completed for the collection
	require.Len(t, events, 10)
	assert.Equal(t, Event{Address: "Namespace.steam_data", Action: ActionCreate, Status: StatusStarted}, events[0])

	var awaitDone Event
	for _, ev := range events {
		if ev.Action == ActionAwaitReady && ev.Status == StatusCompleted {
			awaitDone = ev
		}
	}
	assert.Equal(t, "Collection.steam_product_listings", awaitDone.Address)
	assert.Equal(t, 2, awaitDone.Attempts)
}

func TestProvision_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := null.New()
	p.ReadyAfter["steam_product_listings"] = 3
	e, _ := newTestEngine(p, WithMetrics(m))

	_, err := e.Provision(context.Background(), steamSpecs())
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pollAttempts.WithLabelValues("Collection", ActionAwaitReady)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Collection", string(OutcomeReady))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("Namespace", string(OutcomeCreated))))
}
