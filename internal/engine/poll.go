package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// Default polling budgets. The worst-case wait is roughly MaxAttempts × Interval.
const (
	DefaultReadyMaxAttempts  = 60
	DefaultReadyInterval     = 10 * time.Second
	DefaultDeleteMaxAttempts = 30
	DefaultDeleteInterval    = 5 * time.Second
)

// Condition is the answer of a readiness check that did not fail.
type Condition int

const (
	// Pending means the target state has not been reached yet.
	Pending Condition = iota
	// Satisfied means the target state has been reached.
	Satisfied
)

func (c Condition) String() string {
	if c == Satisfied {
		return "satisfied"
	}
	return "pending"
}

// PollOutcome is how AwaitCondition ended when check never returned an error.
type PollOutcome int

const (
	PollSatisfied PollOutcome = iota
	PollTimedOut
)

func (o PollOutcome) String() string {
	if o == PollTimedOut {
		return "timed out"
	}
	return "satisfied"
}

// Check inspects external state. A non-nil error stops polling immediately and is
// never treated as Pending.
type Check func(ctx context.Context) (Condition, error)

// PollPolicy bounds a polling loop by attempt count.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultReadyPolicy returns the budget used while waiting for a collection.
func DefaultReadyPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: DefaultReadyMaxAttempts, Interval: DefaultReadyInterval}
}

// DefaultDeletePolicy returns the budget used while waiting for a resource to vanish.
func DefaultDeletePolicy() PollPolicy {
	return PollPolicy{MaxAttempts: DefaultDeleteMaxAttempts, Interval: DefaultDeleteInterval}
}

// PollResult reports how a polling loop ended and how many checks it made.
type PollResult struct {
	Outcome  PollOutcome
	Attempts int
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

// AwaitCondition calls check until it returns Satisfied, returns an error, or
// policy.MaxAttempts calls have been made. The first call happens immediately.
// Running out of attempts yields PollTimedOut with a nil error; the caller decides
// whether that is fatal. The context is checked before every wait.
func AwaitCondition(ctx context.Context, check Check, policy PollPolicy) (PollResult, error) {
	return awaitCondition(ctx, check, policy, sleep)
}

func awaitCondition(ctx context.Context, check Check, policy PollPolicy, wait waitFunc) (PollResult, error) {
	if policy.MaxAttempts <= 0 {
		return PollResult{}, resource.Validationf("poll max attempts must be positive, got %d", policy.MaxAttempts)
	}

	for attempt := 1; ; attempt++ {
		cond, err := check(ctx)
		if err != nil {
			return PollResult{Attempts: attempt}, err
		}
		if cond == Satisfied {
			return PollResult{Outcome: PollSatisfied, Attempts: attempt}, nil
		}
		if attempt >= policy.MaxAttempts {
			return PollResult{Outcome: PollTimedOut, Attempts: attempt}, nil
		}

		if err := ctx.Err(); err != nil {
			return PollResult{Attempts: attempt}, fmt.Errorf("polling cancelled after %d attempts: %w", attempt, err)
		}
		if err := wait(ctx, policy.Interval); err != nil {
			return PollResult{Attempts: attempt}, fmt.Errorf("polling cancelled after %d attempts: %w", attempt, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
