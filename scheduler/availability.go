package scheduler

import (
	"github.com/longhorn/resource-dispatcher/resource"
)

// AvailabilityFilter enumerates the resources attached to a node.
type AvailabilityFilter struct {
}

func NewAvailabilityFilter() *AvailabilityFilter {
	return &AvailabilityFilter{}
}

// ListResources returns every resource in the node's metadata tree, wherever nested.
// It returns nil when the node has no metadata, and an empty list when the metadata
// contains no resource.
func (f *AvailabilityFilter) ListResources(node *resource.Node) []*resource.ExternalResource {
	if node == nil {
		return nil
	}
	values := node.Values()
	if values == nil {
		return nil
	}
	return collect(values, []*resource.ExternalResource{})
}

func collect(values []*resource.Value, out []*resource.ExternalResource) []*resource.ExternalResource {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Kind == resource.ValueKindResource && v.Resource != nil {
			out = append(out, v.Resource)
		}
		out = collect(v.Children(), out)
	}
	return out
}

// FilterAvailable keeps the resources which are enabled, not reserved and not locked.
func (f *AvailabilityFilter) FilterAvailable(resources []*resource.ExternalResource) []*resource.ExternalResource {
	available := []*resource.ExternalResource{}
	for _, r := range resources {
		if r.IsEnabled() && r.IsAvailable() {
			available = append(available, r)
		}
	}
	return available
}

// FindByID returns the first resource with the id, or nil.
func (f *AvailabilityFilter) FindByID(node *resource.Node, id string) *resource.ExternalResource {
	if node == nil {
		return nil
	}
	return find(node.Values(), id)
}

func find(values []*resource.Value, id string) *resource.ExternalResource {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Kind == resource.ValueKindResource && v.Resource != nil && v.Resource.GetID() == id {
			return v.Resource
		}
		if found := find(v.Children(), id); found != nil {
			return found
		}
	}
	return nil
}
