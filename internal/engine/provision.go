package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/pkg/resource"
)

// ProvisionResult holds the handles created by a provisioning run, in input
// order, and one record per resource that was attempted.
type ProvisionResult struct {
	Handles []resource.Handle `json:"handles" yaml:"handles"`
	Records []ResourceRecord  `json:"records" yaml:"records"`
}

// Provision creates specs in the given order. Placeholders are resolved from the
// handles created earlier in the same run, and resources that require readiness
// are polled before the next spec is created.
//
// On failure the remaining specs are skipped and the partial result is returned
// together with the error; the caller decides whether to tear it down. An empty
// sequence is a no-op.
func (e *Engine) Provision(ctx context.Context, specs []resource.Spec) (*ProvisionResult, error) {
	result := &ProvisionResult{}
	if len(specs) == 0 {
		return result, nil
	}

	graph, err := BuildGraph(specs)
	if err != nil {
		return result, fmt.Errorf("invalid provisioning sequence: %w", err)
	}

	start := time.Now()
	logging.Info("provisioning started", "resources", len(specs))

	t := newTracker()
	created := make(map[string]resource.Handle, len(specs))

	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("provisioning cancelled before %s: %w", spec.Address(), err)
		}

		logging.Debug("provisioning resource", "address", spec.Address(), "step", fmt.Sprintf("%d/%d", i+1, len(specs)))

		rec, handle, err := e.provisionOne(ctx, graph, t, created, spec)
		e.metrics.outcome(string(spec.Kind), rec.Outcome)
		result.Records = append(result.Records, rec)
		if handle != nil {
			result.Handles = append(result.Handles, *handle)
			created[spec.Name] = *handle
		}
		if err != nil {
			logging.Error("provisioning aborted", "address", spec.Address(), "error", err)
			return result, err
		}
	}

	logging.Info("provisioning completed", "resources", len(result.Handles), "duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (e *Engine) provisionOne(ctx context.Context, graph *Graph, t *tracker, created map[string]resource.Handle, spec resource.Spec) (ResourceRecord, *resource.Handle, error) {
	addr := spec.Address()
	rec := ResourceRecord{Address: addr, Kind: spec.Kind, Name: spec.Name, State: resource.StateRequested}
	start := time.Now()
	t.begin(spec.Name, resource.StateRequested)

	// fail marks the resource Failed. h is the created handle, if any, so that
	// it is still recorded for teardown.
	fail := func(h *resource.Handle, err error) (ResourceRecord, *resource.Handle, error) {
		if terr := t.move(&rec, spec.Name, resource.StateFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		rec.Outcome = OutcomeFailed
		rec.Duration = time.Since(start)
		recordError(&rec, err)
		return rec, h, err
	}

	if err := t.requireReady(addr, graph.Dependencies(spec.Name), e.ContinueOnTimeout); err != nil {
		return fail(nil, err)
	}

	resolved, err := resolveRefs(spec, created)
	if err != nil {
		return fail(nil, err)
	}

	e.emit(Event{Address: addr, Action: ActionCreate, Status: StatusStarted})
	h, err := e.client.Create(ctx, resolved)
	e.metrics.observe(string(spec.Kind), ActionCreate, time.Since(start))
	if err != nil {
		err = fmt.Errorf("create %s: %w", addr, err)
		e.emit(Event{Address: addr, Action: ActionCreate, Status: StatusFailed, Duration: time.Since(start), Error: err})
		return fail(nil, err)
	}
	if h.Kind == "" {
		h.Kind = spec.Kind
	}
	if h.Name == "" {
		h.Name = spec.Name
	}
	if h.Namespace == "" {
		h.Namespace = resolved.Namespace
	}

	rec.ID = h.ID
	if err := t.move(&rec, spec.Name, resource.StateProvisioning); err != nil {
		return fail(&h, err)
	}
	e.emit(Event{Address: addr, Action: ActionCreate, Status: StatusCompleted, Duration: time.Since(start)})
	logging.Info("resource created", "address", addr, "id", h.ID)

	if !spec.Kind.RequiresReadiness() {
		if err := t.move(&rec, spec.Name, resource.StateReady); err != nil {
			return fail(&h, err)
		}
		rec.Outcome = OutcomeCreated
		rec.Duration = time.Since(start)
		return rec, &h, nil
	}

	waitStart := time.Now()
	e.emit(Event{Address: addr, Action: ActionAwaitReady, Status: StatusStarted})
	res, err := e.await(ctx, spec.Kind, ActionAwaitReady, e.readyCheck(h), e.ReadyPolicy)
	rec.Attempts = res.Attempts
	rec.Duration = time.Since(start)
	e.metrics.observe(string(spec.Kind), ActionAwaitReady, time.Since(waitStart))

	if err != nil {
		err = fmt.Errorf("waiting for %s: %w", addr, err)
		e.emit(Event{Address: addr, Action: ActionAwaitReady, Status: StatusFailed, Attempts: res.Attempts, Duration: time.Since(waitStart), Error: err})
		return fail(&h, err)
	}

	if res.Outcome == PollTimedOut {
		e.emit(Event{Address: addr, Action: ActionAwaitReady, Status: StatusTimedOut, Attempts: res.Attempts, Duration: time.Since(waitStart)})
		rec.Outcome = OutcomeTimedOut
		if e.ContinueOnTimeout {
			logging.Warn("resource not ready, continuing", "address", addr, "attempts", res.Attempts)
			return rec, &h, nil
		}
		rec, _, err = fail(&h, fmt.Errorf("%s after %d attempts: %w", addr, res.Attempts, ErrReadinessTimeout))
		rec.Outcome = OutcomeTimedOut
		return rec, &h, err
	}

	if err := t.move(&rec, spec.Name, resource.StateReady); err != nil {
		return fail(&h, err)
	}
	rec.Outcome = OutcomeReady
	e.emit(Event{Address: addr, Action: ActionAwaitReady, Status: StatusCompleted, Attempts: res.Attempts, Duration: time.Since(waitStart)})
	logging.Info("resource ready", "address", addr, "attempts", res.Attempts)
	return rec, &h, nil
}

// readyCheck is satisfied once the backend reports h as Ready. A missing resource
// or a Failed state ends the wait with an error.
func (e *Engine) readyCheck(h resource.Handle) Check {
	return func(ctx context.Context) (Condition, error) {
		snap, err := e.client.Get(ctx, h)
		if err != nil {
			return Pending, err
		}
		logging.Debug("readiness check", "address", h.Address(), "state", snap.State, "status", snap.Status)
		switch snap.State {
		case resource.StateReady:
			return Satisfied, nil
		case resource.StateFailed:
			return Pending, fmt.Errorf("%w: %s status %q", ErrResourceFailed, h.Address(), snap.Status)
		default:
			return Pending, nil
		}
	}
}
