package engine

import (
	"context"
	"errors"
	"time"

	"github.com/picklr-io/reportchain/pkg/resource"
)

var (
	// ErrReadinessTimeout means a resource did not become ready within its budget.
	ErrReadinessTimeout = errors.New("resource did not become ready in time")

	// ErrResourceFailed means the backend reported a resource in a failed state.
	ErrResourceFailed = errors.New("resource reported failed state")
)

// ResourceOutcome is the reported result for one resource.
type ResourceOutcome string

const (
	OutcomeCreated       ResourceOutcome = "created"
	OutcomeReady         ResourceOutcome = "ready"
	OutcomeTimedOut      ResourceOutcome = "timed_out"
	OutcomeFailed        ResourceOutcome = "failed"
	OutcomeDeleted       ResourceOutcome = "deleted"
	OutcomeAlreadyAbsent ResourceOutcome = "already_absent"
)

// ResourceRecord is the per-resource line of a provisioning or teardown report.
type ResourceRecord struct {
	Address  string          `json:"address" yaml:"address"`
	Kind     resource.Kind   `json:"kind" yaml:"kind"`
	Name     string          `json:"name" yaml:"name"`
	ID       string          `json:"id,omitempty" yaml:"id,omitempty"`
	State    resource.State  `json:"state" yaml:"-"`
	Outcome  ResourceOutcome `json:"outcome" yaml:"outcome"`
	Attempts int             `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Duration time.Duration   `json:"duration" yaml:"duration"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Err      error           `json:"-" yaml:"-"`
}

// Engine orchestrates the lifecycle of a resource chain against one client.
type Engine struct {
	client resource.Client

	// ReadyPolicy bounds the wait for resources that require readiness.
	ReadyPolicy PollPolicy
	// DeletePolicy bounds the wait for a deleted resource to disappear.
	DeletePolicy PollPolicy
	// ContinueOnTimeout lets provisioning proceed past a readiness timeout. The
	// resource is reported as timed out and stays Provisioning.
	ContinueOnTimeout bool

	callback EventCallback
	metrics  *Metrics
	wait     waitFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithReadyPolicy sets the readiness polling budget.
func WithReadyPolicy(p PollPolicy) Option {
	return func(e *Engine) { e.ReadyPolicy = p }
}

// WithDeletePolicy sets the deletion polling budget.
func WithDeletePolicy(p PollPolicy) Option {
	return func(e *Engine) { e.DeletePolicy = p }
}

// WithContinueOnTimeout makes readiness timeouts non-fatal.
func WithContinueOnTimeout(v bool) Option {
	return func(e *Engine) { e.ContinueOnTimeout = v }
}

// WithEventCallback registers a progress callback.
func WithEventCallback(cb EventCallback) Option {
	return func(e *Engine) { e.callback = cb }
}

// WithMetrics records counters into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine for client.
func NewEngine(client resource.Client, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		ReadyPolicy:  DefaultReadyPolicy(),
		DeletePolicy: DefaultDeletePolicy(),
		wait:         sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// await runs the poller and counts every check against kind and action.
func (e *Engine) await(ctx context.Context, kind resource.Kind, action string, check Check, policy PollPolicy) (PollResult, error) {
	counted := func(ctx context.Context) (Condition, error) {
		e.metrics.pollAttempt(string(kind), action)
		return check(ctx)
	}
	return awaitCondition(ctx, counted, policy, e.wait)
}

func recordError(rec *ResourceRecord, err error) {
	rec.Err = err
	if err != nil {
		rec.Error = err.Error()
	}
}
