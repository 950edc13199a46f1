// Package config loads process configuration: .env files, polling budgets and
// backend credentials.
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by reportchain.
const (
	EnvLogLevel          = "REPORTCHAIN_LOG_LEVEL"
	EnvAPIKey            = "REPORTCHAIN_API_KEY"
	EnvAPIServer         = "REPORTCHAIN_API_SERVER"
	EnvWebhookToken      = "REPORTCHAIN_WEBHOOK_TOKEN"
	EnvReadyMaxAttempts  = "REPORTCHAIN_READY_MAX_ATTEMPTS"
	EnvReadyInterval     = "REPORTCHAIN_READY_INTERVAL"
	EnvDeleteMaxAttempts = "REPORTCHAIN_DELETE_MAX_ATTEMPTS"
	EnvDeleteInterval    = "REPORTCHAIN_DELETE_INTERVAL"
)

// LoadDotEnv loads variables from the given files into the process environment.
// Variables that are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}
