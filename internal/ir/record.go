package ir

import (
	"github.com/picklr-io/reportchain/pkg/resource"
)

// RecordVersion is the current run record format version.
const RecordVersion = 1

// RunRecord is the persisted list of resources created by a provisioning run. It
// is the only input teardown needs.
type RunRecord struct {
	Version   int                 `pkl:"version" json:"version" yaml:"version"`
	Serial    int                 `pkl:"serial" json:"serial" yaml:"serial"`
	RunID     string              `pkl:"runId" json:"runId" yaml:"runId"`
	Provider  string              `pkl:"provider" json:"provider" yaml:"provider"`
	CreatedAt string              `pkl:"createdAt" json:"createdAt" yaml:"createdAt"`
	Resources []*RecordedResource `pkl:"resources" json:"resources" yaml:"resources"`
}

type RecordedResource struct {
	Kind       string            `pkl:"kind" json:"kind" yaml:"kind"`
	Name       string            `pkl:"name" json:"name" yaml:"name"`
	ID         string            `pkl:"id" json:"id" yaml:"id"`
	Namespace  string            `pkl:"namespace" json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Attributes map[string]string `pkl:"attributes" json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Outcome    string            `pkl:"outcome" json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Empty reports whether the record holds no resources.
func (r *RunRecord) Empty() bool {
	return r == nil || len(r.Resources) == 0
}

// Handles returns the recorded resources as handles in creation order.
func (r *RunRecord) Handles() []resource.Handle {
	if r == nil {
		return nil
	}
	handles := make([]resource.Handle, 0, len(r.Resources))
	for _, res := range r.Resources {
		if res == nil {
			continue
		}
		handles = append(handles, resource.Handle{
			Kind:       resource.Kind(res.Kind),
			Name:       res.Name,
			ID:         res.ID,
			Namespace:  res.Namespace,
			Attributes: res.Attributes,
		})
	}
	return handles
}

// RecordHandle appends h to the record, replacing an entry with the same address.
func (r *RunRecord) RecordHandle(h resource.Handle, outcome string) {
	entry := &RecordedResource{
		Kind:       string(h.Kind),
		Name:       h.Name,
		ID:         h.ID,
		Namespace:  h.Namespace,
		Attributes: h.Attributes,
		Outcome:    outcome,
	}
	for i, res := range r.Resources {
		if res != nil && res.Kind == entry.Kind && res.Name == entry.Name {
			r.Resources[i] = entry
			return
		}
	}
	r.Resources = append(r.Resources, entry)
}
