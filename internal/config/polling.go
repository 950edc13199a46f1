package config

import (
	"os"
	"strconv"
	"time"

	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/logging"
)

// Polling holds the readiness and deletion polling budgets.
type Polling struct {
	ReadyMaxAttempts  int
	ReadyInterval     time.Duration
	DeleteMaxAttempts int
	DeleteInterval    time.Duration
}

// LoadPolling reads polling budgets from the environment. Unset or invalid values
// fall back to the engine defaults.
//
// Environment Variables:
//   - REPORTCHAIN_READY_MAX_ATTEMPTS (default: 60)
//   - REPORTCHAIN_READY_INTERVAL (default: 10s)
//   - REPORTCHAIN_DELETE_MAX_ATTEMPTS (default: 30)
//   - REPORTCHAIN_DELETE_INTERVAL (default: 5s)
func LoadPolling() *Polling {
	return &Polling{
		ReadyMaxAttempts:  parsePositiveInt(EnvReadyMaxAttempts, engine.DefaultReadyMaxAttempts),
		ReadyInterval:     parseDuration(EnvReadyInterval, engine.DefaultReadyInterval),
		DeleteMaxAttempts: parsePositiveInt(EnvDeleteMaxAttempts, engine.DefaultDeleteMaxAttempts),
		DeleteInterval:    parseDuration(EnvDeleteInterval, engine.DefaultDeleteInterval),
	}
}

func (p *Polling) ReadyPolicy() engine.PollPolicy {
	return engine.PollPolicy{MaxAttempts: p.ReadyMaxAttempts, Interval: p.ReadyInterval}
}

func (p *Polling) DeletePolicy() engine.PollPolicy {
	return engine.PollPolicy{MaxAttempts: p.DeleteMaxAttempts, Interval: p.DeleteInterval}
}

func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		logging.Warn("ignoring invalid duration", "variable", envVar, "value", val)
		return defaultVal
	}
	return d
}

func parsePositiveInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		logging.Warn("ignoring invalid count", "variable", envVar, "value", val)
		return defaultVal
	}
	return i
}
