// Package provider resolves a backend name to a resource.Client.
package provider

import (
	"fmt"
	"sync"

	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/picklr-io/reportchain/providers/controlplane"
	"github.com/picklr-io/reportchain/providers/null"
)

// Backend names.
const (
	Null         = "null"
	ControlPlane = "controlplane"
)

// Options carries backend credentials. The null backend ignores them.
type Options struct {
	Server string
	APIKey string
}

// Registry manages the lifecycle of backends.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]resource.Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]resource.Client),
	}
}

// Load initializes and registers a backend. Loading a name twice keeps the first
// client.
func (r *Registry) Load(name string, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[name]; exists {
		return nil
	}

	var c resource.Client
	switch name {
	case Null:
		c = null.New()
	case ControlPlane:
		cp, err := controlplane.New(controlplane.Options{Server: opts.Server, APIKey: opts.APIKey})
		if err != nil {
			return err
		}
		c = cp
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.clients[name] = c
	return nil
}

// Get returns a loaded backend.
func (r *Registry) Get(name string) (resource.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return c, nil
}
