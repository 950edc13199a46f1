package engine

import (
	"fmt"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// tracker records the lifecycle state of each resource during one run and rejects
// illegal transitions.
type tracker struct {
	states map[string]resource.State
}

func newTracker() *tracker {
	return &tracker{states: make(map[string]resource.State)}
}

// begin registers a resource in its initial state.
func (t *tracker) begin(name string, state resource.State) {
	t.states[name] = state
}

// transition moves name to the given state and returns the state it is in
// afterwards. An illegal transition leaves the state unchanged.
func (t *tracker) transition(name string, to resource.State) (resource.State, error) {
	from, ok := t.states[name]
	if !ok {
		return from, fmt.Errorf("resource %s is not tracked", name)
	}
	if !resource.CanTransition(from, to) {
		return from, fmt.Errorf("illegal state transition for %s: %s -> %s", name, from, to)
	}
	t.states[name] = to
	return to, nil
}

// move transitions name and copies the resulting state into rec.
func (t *tracker) move(rec *ResourceRecord, name string, to resource.State) error {
	s, err := t.transition(name, to)
	rec.State = s
	return err
}

// requireReady checks that every dependency is Ready. When allowPending is set a
// dependency still Provisioning is accepted; this only happens after the caller
// opted to continue past a readiness timeout.
func (t *tracker) requireReady(name string, deps []string, allowPending bool) error {
	for _, dep := range deps {
		s, ok := t.states[dep]
		if !ok {
			return fmt.Errorf("%s depends on %s which was never created", name, dep)
		}
		if s == resource.StateReady || (allowPending && s == resource.StateProvisioning) {
			continue
		}
		return fmt.Errorf("%s depends on %s which is %s", name, dep, s)
	}
	return nil
}
