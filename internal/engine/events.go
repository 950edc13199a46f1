package engine

import (
	"time"
)

// Event actions.
const (
	ActionCreate      = "create"
	ActionAwaitReady  = "await-ready"
	ActionDelete      = "delete"
	ActionAwaitAbsent = "await-absent"
)

// Event statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
	StatusAbsent    = "already_absent"
)

// Event represents a progress event during provisioning or teardown.
type Event struct {
	Address  string
	Action   string
	Status   string
	Attempts int
	Duration time.Duration
	Error    error
}

// EventCallback is called for each event if set.
type EventCallback func(event Event)

func (e *Engine) emit(event Event) {
	if e.callback != nil {
		e.callback(event)
	}
}
