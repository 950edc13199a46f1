// Package resource defines the contract between the provisioning engine and the
// backends that create, inspect and delete data-platform resources.
package resource

import (
	"context"
	"fmt"
)

// Kind identifies one of the resource types managed in a report chain.
type Kind string

const (
	KindNamespace           Kind = "Namespace"
	KindCollection          Kind = "Collection"
	KindParameterizedQuery  Kind = "ParameterizedQuery"
	KindScheduledAutomation Kind = "ScheduledAutomation"
)

// Kinds lists every supported kind in dependency order.
var Kinds = []Kind{KindNamespace, KindCollection, KindParameterizedQuery, KindScheduledAutomation}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNamespace, KindCollection, KindParameterizedQuery, KindScheduledAutomation:
		return true
	}
	return false
}

// RequiresReadiness reports whether a freshly created resource of this kind must be
// polled before dependents may be created. Only collections ingest asynchronously.
func (k Kind) RequiresReadiness() bool {
	return k == KindCollection
}

// Spec describes a resource to create.
type Spec struct {
	Kind      Kind
	Name      string
	Namespace string   // owning namespace, empty for KindNamespace
	DependsOn []string // explicit dependencies by spec name

	Collection *CollectionParams
	Query      *QueryParams
	Automation *AutomationParams
}

// Address returns the "kind.name" address used in logs and reports.
func (s Spec) Address() string {
	return fmt.Sprintf("%s.%s", s.Kind, s.Name)
}

// CollectionParams are the creation parameters of a collection.
type CollectionParams struct {
	SourceURI      string
	Format         string
	Transformation string
}

// QueryParams are the creation parameters of a parameterized query.
type QueryParams struct {
	SQL        string
	Parameters []QueryParameter
}

// QueryParameter is a named, typed query parameter with a default value.
type QueryParameter struct {
	Name    string
	Type    string
	Default string
}

// AutomationParams are the creation parameters of a scheduled automation.
type AutomationParams struct {
	Schedule     string // five-field cron expression
	QueryName    string
	QueryVersion string
	RepeatCount  int // 0 means unlimited
	Callback     *Callback
}

// Callback is an opaque webhook descriptor passed through to the scheduling system.
// BodyTemplate contains one substitution marker for the query result payload.
type Callback struct {
	URL          string
	AuthToken    string
	BodyTemplate string
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	c := s
	if s.DependsOn != nil {
		c.DependsOn = append([]string(nil), s.DependsOn...)
	}
	if s.Collection != nil {
		p := *s.Collection
		c.Collection = &p
	}
	if s.Query != nil {
		p := *s.Query
		p.Parameters = append([]QueryParameter(nil), s.Query.Parameters...)
		c.Query = &p
	}
	if s.Automation != nil {
		p := *s.Automation
		if s.Automation.Callback != nil {
			cb := *s.Automation.Callback
			p.Callback = &cb
		}
		c.Automation = &p
	}
	return c
}

// Handle identifies a created resource.
type Handle struct {
	Kind       Kind              `json:"kind" yaml:"kind"`
	Name       string            `json:"name" yaml:"name"`
	ID         string            `json:"id" yaml:"id"`
	Namespace  string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Address returns the "kind.name" address of the handle.
func (h Handle) Address() string {
	return fmt.Sprintf("%s.%s", h.Kind, h.Name)
}

// Attr returns a handle attribute. "id", "name" and "namespace" resolve to the
// corresponding fields.
func (h Handle) Attr(name string) (string, bool) {
	switch name {
	case "id":
		return h.ID, h.ID != ""
	case "name":
		return h.Name, h.Name != ""
	case "namespace":
		return h.Namespace, h.Namespace != ""
	}
	v, ok := h.Attributes[name]
	return v, ok
}

// Snapshot is the observed state of a resource.
type Snapshot struct {
	Handle Handle
	State  State
	Status string // raw backend status
}

// Client creates, reads and deletes resources. Calls are synchronous; errors are
// classified with the sentinels in errors.go.
type Client interface {
	Create(ctx context.Context, spec Spec) (Handle, error)
	Get(ctx context.Context, h Handle) (Snapshot, error)
	Delete(ctx context.Context, h Handle) error
}
