package scheduler

import (
	"github.com/longhorn/resource-dispatcher/resource"
)

// StringResourceSelection matches when the attribute at the dotted Name path has the
// string form Value. A backslash escapes a dot that belongs to a path segment.
type StringResourceSelection struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

func (s *StringResourceSelection) Matches(r *resource.ExternalResource) bool {
	if r == nil {
		return false
	}
	path := resource.SplitPath(s.Name)
	if len(path) == 0 {
		return false
	}
	value, ok := r.Attribute(path)
	return ok && value == s.Value
}

// SelectionCriteria is attached to a workload definition. A resource matches when all
// selections match it.
type SelectionCriteria struct {
	Enabled    bool                       `json:"enabled" yaml:"enabled"`
	Selections []*StringResourceSelection `json:"selections" yaml:"selections"`
}

// IsActive reports whether dispatch has to find a resource for the workload.
func (c *SelectionCriteria) IsActive() bool {
	return c != nil && c.Enabled && len(c.Selections) > 0
}

// Match returns the resources matching every selection, in input order.
func (c *SelectionCriteria) Match(resources []*resource.ExternalResource) []*resource.ExternalResource {
	matching := []*resource.ExternalResource{}
	for _, r := range resources {
		if c.matches(r) {
			matching = append(matching, r)
		}
	}
	return matching
}

func (c *SelectionCriteria) matches(r *resource.ExternalResource) bool {
	if c == nil {
		return true
	}
	for _, s := range c.Selections {
		if !s.Matches(r) {
			return false
		}
	}
	return true
}
