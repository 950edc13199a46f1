// Package null provides an in-memory resource backend. It keeps no external state
// and is used for dry runs and tests.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// Call is one recorded client invocation.
type Call struct {
	Op   string // "create", "get", "delete"
	Kind resource.Kind
	Name string
	ID   string
}

type entry struct {
	handle      resource.Handle
	gets        int
	readyAfter  int
	deleting    bool
	deleteGets  int
	absentAfter int
}

// Provider is an in-memory resource.Client.
type Provider struct {
	mu        sync.Mutex
	resources map[string]*entry // kind/id
	seq       int
	calls     []Call

	// ReadyAfter maps a resource name to the number of Get calls after which it
	// reports Ready. Kinds that need no readiness are Ready immediately.
	ReadyAfter map[string]int
	// DefaultReadyAfter applies when ReadyAfter has no entry. Zero means 1.
	DefaultReadyAfter int
	// AbsentAfter is the number of Get calls after a delete until the resource is
	// gone. Zero means the first Get after a delete already reports it missing.
	AbsentAfter int
	// Failures injects errors keyed by "<op>:<Kind>.<name>", e.g.
	// "create:Collection.listings".
	Failures map[string]error
}

// New returns an empty in-memory provider.
func New() *Provider {
	return &Provider{
		resources:  make(map[string]*entry),
		ReadyAfter: make(map[string]int),
		Failures:   make(map[string]error),
	}
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor returns the recorded calls for one operation.
func (p *Provider) CallsFor(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Exists reports whether a live (not deleting) resource with the handle's kind and
// id is known.
func (p *Provider) Exists(h resource.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[key(h.Kind, h.ID)]
	return ok && !e.deleting
}

func (p *Provider) Create(ctx context.Context, spec resource.Spec) (resource.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "create", Kind: spec.Kind, Name: spec.Name})
	if err := p.injected("create", spec.Kind, spec.Name); err != nil {
		return resource.Handle{}, err
	}
	if err := spec.Validate(); err != nil {
		return resource.Handle{}, resource.NewError("create", spec.Kind, spec.Name, err)
	}
	if spec.Kind != resource.KindNamespace {
		if _, ok := p.resources[key(resource.KindNamespace, spec.Namespace)]; !ok {
			return resource.Handle{}, resource.NewError("create", spec.Kind, spec.Name,
				fmt.Errorf("namespace %q: %w", spec.Namespace, resource.ErrNotFound))
		}
	}

	h := resource.Handle{Kind: spec.Kind, Name: spec.Name, Namespace: spec.Namespace}
	switch spec.Kind {
	case resource.KindNamespace:
		h.ID = spec.Name
		h.Namespace = ""
	case resource.KindCollection, resource.KindParameterizedQuery:
		h.ID = spec.Namespace + "." + spec.Name
	case resource.KindScheduledAutomation:
		p.seq++
		h.ID = fmt.Sprintf("sched-%04d", p.seq)
	}
	if spec.Kind == resource.KindParameterizedQuery {
		p.seq++
		h.Attributes = map[string]string{"version": fmt.Sprintf("%016x", p.seq)}
	}

	k := key(h.Kind, h.ID)
	if e, ok := p.resources[k]; ok && !e.deleting {
		return resource.Handle{}, resource.NewError("create", spec.Kind, spec.Name, resource.ErrAlreadyExists)
	}

	readyAfter := 1
	if spec.Kind.RequiresReadiness() {
		if n, ok := p.ReadyAfter[spec.Name]; ok {
			readyAfter = n
		} else if p.DefaultReadyAfter > 0 {
			readyAfter = p.DefaultReadyAfter
		}
	}
	p.resources[k] = &entry{handle: h, readyAfter: readyAfter}
	return h, nil
}

func (p *Provider) Get(ctx context.Context, h resource.Handle) (resource.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "get", Kind: h.Kind, Name: h.Name, ID: h.ID})
	if err := p.injected("get", h.Kind, h.Name); err != nil {
		return resource.Snapshot{}, err
	}

	k := key(h.Kind, h.ID)
	e, ok := p.resources[k]
	if !ok {
		return resource.Snapshot{}, resource.NewError("get", h.Kind, h.Name, resource.ErrNotFound)
	}

	if e.deleting {
		e.deleteGets++
		if e.deleteGets > e.absentAfter {
			delete(p.resources, k)
			return resource.Snapshot{}, resource.NewError("get", h.Kind, h.Name, resource.ErrNotFound)
		}
		return resource.Snapshot{Handle: e.handle, State: resource.StateDeletionRequested, Status: "DELETED"}, nil
	}

	e.gets++
	if e.gets >= e.readyAfter {
		return resource.Snapshot{Handle: e.handle, State: resource.StateReady, Status: "READY"}, nil
	}
	return resource.Snapshot{Handle: e.handle, State: resource.StateProvisioning, Status: "CREATED"}, nil
}

func (p *Provider) Delete(ctx context.Context, h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "delete", Kind: h.Kind, Name: h.Name, ID: h.ID})
	if err := p.injected("delete", h.Kind, h.Name); err != nil {
		return err
	}

	e, ok := p.resources[key(h.Kind, h.ID)]
	if !ok || e.deleting {
		return resource.NewError("delete", h.Kind, h.Name, resource.ErrNotFound)
	}

	if h.Kind == resource.KindNamespace {
		for _, other := range p.resources {
			if other.handle.Namespace == h.ID && !other.deleting {
				return resource.NewError("delete", h.Kind, h.Name,
					fmt.Errorf("namespace still contains %s: %w", other.handle.Address(), resource.ErrValidation))
			}
		}
	}

	e.deleting = true
	e.absentAfter = p.AbsentAfter
	return nil
}

func (p *Provider) injected(op string, kind resource.Kind, name string) error {
	err, ok := p.Failures[fmt.Sprintf("%s:%s.%s", op, kind, name)]
	if !ok {
		return nil
	}
	return resource.NewError(op, kind, name, err)
}

func key(kind resource.Kind, id string) string {
	return string(kind) + "/" + id
}
