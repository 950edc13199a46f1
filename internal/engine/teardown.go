package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/picklr-io/reportchain/pkg/resource"
)

// TeardownReport lists one record per handle, in the order deletes were issued.
type TeardownReport struct {
	Records []ResourceRecord `json:"records" yaml:"records"`
}

// Complete reports whether every resource is gone.
func (r *TeardownReport) Complete() bool {
	for _, rec := range r.Records {
		if rec.Outcome != OutcomeDeleted && rec.Outcome != OutcomeAlreadyAbsent {
			return false
		}
	}
	return true
}

// Err joins the per-resource failures, or returns nil when teardown is complete.
func (r *TeardownReport) Err() error {
	var errs []error
	for _, rec := range r.Records {
		switch {
		case rec.Err != nil:
			errs = append(errs, rec.Err)
		case rec.Outcome == OutcomeTimedOut:
			errs = append(errs, fmt.Errorf("%s still present after %d checks", rec.Address, rec.Attempts))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d resource(s) not deleted: %w", len(errs), errors.Join(errs...))
}

// Teardown deletes handles in reverse order, waiting for each to disappear. It is
// best effort: a failure is recorded and the next resource is still processed. A
// resource that is already gone counts as deleted, so repeated teardowns succeed.
func (e *Engine) Teardown(ctx context.Context, handles []resource.Handle) *TeardownReport {
	report := &TeardownReport{}
	t := newTracker()

	logging.Info("teardown started", "resources", len(handles))
	for i := len(handles) - 1; i >= 0; i-- {
		rec := e.teardownOne(ctx, t, handles[i])
		e.metrics.outcome(string(handles[i].Kind), rec.Outcome)
		report.Records = append(report.Records, rec)
	}

	if report.Complete() {
		logging.Info("teardown completed", "resources", len(handles))
	} else {
		logging.Warn("teardown incomplete", "error", report.Err())
	}
	return report
}

func (e *Engine) teardownOne(ctx context.Context, t *tracker, h resource.Handle) ResourceRecord {
	addr := h.Address()
	rec := ResourceRecord{Address: addr, Kind: h.Kind, Name: h.Name, ID: h.ID, State: resource.StateReady}
	start := time.Now()
	t.begin(addr, resource.StateReady)

	// fail records err and leaves the state wherever the tracker has it.
	fail := func(err error) ResourceRecord {
		rec.Outcome = OutcomeFailed
		rec.Duration = time.Since(start)
		recordError(&rec, err)
		logging.Error("teardown failed", "address", addr, "state", rec.State, "error", err)
		return rec
	}

	if err := ctx.Err(); err != nil {
		rec.Outcome = OutcomeFailed
		recordError(&rec, fmt.Errorf("teardown cancelled before %s: %w", addr, err))
		return rec
	}

	e.emit(Event{Address: addr, Action: ActionDelete, Status: StatusStarted})
	err := e.client.Delete(ctx, h)
	e.metrics.observe(string(h.Kind), ActionDelete, time.Since(start))
	if resource.IsNotFound(err) {
		if err := t.move(&rec, addr, resource.StateDeletionRequested); err != nil {
			return fail(err)
		}
		if err := t.move(&rec, addr, resource.StateDeleted); err != nil {
			return fail(err)
		}
		rec.Outcome = OutcomeAlreadyAbsent
		rec.Duration = time.Since(start)
		e.emit(Event{Address: addr, Action: ActionDelete, Status: StatusAbsent, Duration: rec.Duration})
		logging.Info("resource already absent", "address", addr, "id", h.ID)
		return rec
	}
	if err != nil {
		err = fmt.Errorf("delete %s: %w", addr, err)
		rec.Outcome = OutcomeFailed
		rec.Duration = time.Since(start)
		recordError(&rec, err)
		e.emit(Event{Address: addr, Action: ActionDelete, Status: StatusFailed, Duration: rec.Duration, Error: err})
		logging.Error("delete failed", "address", addr, "error", err)
		return rec
	}

	if err := t.move(&rec, addr, resource.StateDeletionRequested); err != nil {
		return fail(err)
	}
	e.emit(Event{Address: addr, Action: ActionDelete, Status: StatusCompleted, Duration: time.Since(start)})

	waitStart := time.Now()
	e.emit(Event{Address: addr, Action: ActionAwaitAbsent, Status: StatusStarted})
	res, err := e.await(ctx, h.Kind, ActionAwaitAbsent, e.absentCheck(h), e.DeletePolicy)
	rec.Attempts = res.Attempts
	rec.Duration = time.Since(start)
	e.metrics.observe(string(h.Kind), ActionAwaitAbsent, time.Since(waitStart))

	switch {
	case err != nil:
		err = fmt.Errorf("waiting for %s to be deleted: %w", addr, err)
		rec.Outcome = OutcomeFailed
		recordError(&rec, err)
		e.emit(Event{Address: addr, Action: ActionAwaitAbsent, Status: StatusFailed, Attempts: res.Attempts, Duration: time.Since(waitStart), Error: err})
		logging.Error("deletion check failed", "address", addr, "error", err)
	case res.Outcome == PollTimedOut:
		if err := t.move(&rec, addr, resource.StateFailed); err != nil {
			return fail(err)
		}
		rec.Outcome = OutcomeTimedOut
		e.emit(Event{Address: addr, Action: ActionAwaitAbsent, Status: StatusTimedOut, Attempts: res.Attempts, Duration: time.Since(waitStart)})
		logging.Warn("resource still present after delete", "address", addr, "attempts", res.Attempts)
	default:
		if err := t.move(&rec, addr, resource.StateDeleted); err != nil {
			return fail(err)
		}
		rec.Outcome = OutcomeDeleted
		e.emit(Event{Address: addr, Action: ActionAwaitAbsent, Status: StatusCompleted, Attempts: res.Attempts, Duration: time.Since(waitStart)})
		logging.Info("resource deleted", "address", addr, "id", h.ID, "attempts", res.Attempts)
	}
	return rec
}

// absentCheck is satisfied once the backend no longer knows h.
func (e *Engine) absentCheck(h resource.Handle) Check {
	return func(ctx context.Context) (Condition, error) {
		snap, err := e.client.Get(ctx, h)
		if resource.IsNotFound(err) {
			return Satisfied, nil
		}
		if err != nil {
			return Pending, err
		}
		if snap.State == resource.StateDeleted {
			return Satisfied, nil
		}
		logging.Debug("deletion check", "address", h.Address(), "status", snap.Status)
		return Pending, nil
	}
}
