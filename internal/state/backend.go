package state

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/picklr-io/reportchain/internal/eval"
	"github.com/picklr-io/reportchain/internal/ir"
)

// Backend defines the interface for run record storage.
type Backend interface {
	// Read loads the record. A missing record yields an empty one.
	Read(ctx context.Context) (*ir.RunRecord, error)

	// Write saves the record.
	Write(ctx context.Context, rec *ir.RunRecord) error

	// Clear deletes the record.
	Clear(ctx context.Context) error

	// Lock acquires an exclusive lock on the record.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the record.
	Unlock(ctx context.Context) error
}

// BackendConfig holds configuration for a record backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local" or "s3"
	Config map[string]string `json:"config"`
}

// ParseBackend parses a --backend value:
//
//	local                      local file at DefaultPath
//	local:<path>               local file at path
//	s3://<bucket>/<key>?region=eu-west-1&lock_table=locks&encrypt=true&profile=prod
func ParseBackend(spec string) (*BackendConfig, error) {
	switch {
	case spec == "" || spec == "local":
		return &BackendConfig{Type: "local", Config: map[string]string{"path": DefaultPath}}, nil
	case strings.HasPrefix(spec, "local:"):
		path := strings.TrimPrefix(spec, "local:")
		if path == "" {
			return nil, fmt.Errorf("local backend requires a path")
		}
		return &BackendConfig{Type: "local", Config: map[string]string{"path": path}}, nil
	case strings.HasPrefix(spec, "s3://"):
		u, err := url.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 backend %q: %w", spec, err)
		}
		cfg := map[string]string{
			"bucket": u.Host,
			"key":    strings.TrimPrefix(u.Path, "/"),
		}
		q := u.Query()
		for param, key := range map[string]string{
			"region":     "region",
			"lock_table": "dynamodb_table",
			"encrypt":    "encrypt",
			"profile":    "profile",
		} {
			if v := q.Get(param); v != "" {
				cfg[key] = v
			}
		}
		return &BackendConfig{Type: "s3", Config: cfg}, nil
	}
	return nil, fmt.Errorf("unknown backend: %s", spec)
}

// NewBackend creates a record backend from configuration.
func NewBackend(ctx context.Context, cfg *BackendConfig, evaluator *eval.Evaluator) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			path = DefaultPath
		}
		return NewManager(path, evaluator), nil
	case "s3":
		return newS3Backend(ctx, cfg.Config, evaluator)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
