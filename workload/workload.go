package workload

import (
	"io"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
)

// Definition is the configured workload, for instance a build job.
type Definition struct {
	Name     string                       `json:"name" yaml:"name"`
	URL      string                       `json:"url" yaml:"url"`
	Criteria *scheduler.SelectionCriteria `json:"criteria,omitempty" yaml:"criteria,omitempty"`
}

// Pending is a workload instance waiting in the queue for a node.
type Pending struct {
	ID         string      `json:"id"`
	Definition *Definition `json:"definition"`
}

// Holder is the identity used for reservations made on behalf of the workload.
func (p *Pending) Holder() string {
	if p == nil || p.Definition == nil {
		return ""
	}
	return p.Definition.URL
}

func (p *Pending) Criteria() *scheduler.SelectionCriteria {
	if p == nil || p.Definition == nil {
		return nil
	}
	return p.Definition.Criteria
}

type RunState string

const (
	RunStatePreparing = RunState("preparing")
	RunStateRunning   = RunState("running")
	RunStateAborted   = RunState("aborted")
	RunStateCompleted = RunState("completed")
)

// Run is the durable record of a workload instance that started on a node.
type Run struct {
	ID         string            `json:"id"`
	PendingID  string            `json:"pendingID"`
	Definition *Definition       `json:"definition"`
	NodeName   string            `json:"nodeName"`
	State      RunState          `json:"state"`
	Created    string            `json:"created"`
	Metadata   []*resource.Value `json:"metadata,omitempty"`
	Messages   []string          `json:"messages,omitempty"`

	KVIndex uint64 `json:"-"`

	// Log receives user facing messages about the run.
	Log io.Writer `json:"-"`
}

func (r *Run) Holder() string {
	if r == nil || r.Definition == nil {
		return ""
	}
	return r.Definition.URL
}

func (r *Run) Criteria() *scheduler.SelectionCriteria {
	if r == nil || r.Definition == nil {
		return nil
	}
	return r.Definition.Criteria
}

// LockedResource returns the snapshot of the resource locked for this run, or nil.
func (r *Run) LockedResource() *resource.ExternalResource {
	value := resource.Lookup(r.Metadata, types.LockedResourcePath)
	if value == nil || value.Kind != resource.ValueKindResource {
		return nil
	}
	return value.Resource
}

// SetLockedResource attaches the snapshot at the locked resource path.
func (r *Run) SetLockedResource(snapshot *resource.ExternalResource) {
	r.Metadata = resource.SetPath(r.Metadata, types.LockedResourcePath, resource.NewResourceValue(snapshot))
}
