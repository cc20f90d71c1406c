package metricscollector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/longhorn/resource-dispatcher/resource"
)

const (
	metricsName = "external_resource"

	subsystemNode     = "node"
	subsystemResource = "resource"
	subsystemDispatch = "dispatch"
	subsystemBackend  = "backend"

	nodeLabel      = "node"
	resourceLabel  = "resource"
	stateLabel     = "state"
	resultLabel    = "result"
	managerLabel   = "manager"
	operationLabel = "operation"
	kindLabel      = "kind"

	resourceStateAvailable = "available"
	resourceStateReserved  = "reserved"
	resourceStateLocked    = "locked"
	resourceStateDisabled  = "disabled"
)

var resourceStates = []string{
	resourceStateAvailable,
	resourceStateReserved,
	resourceStateLocked,
	resourceStateDisabled,
}

type metricInfo struct {
	Desc *prometheus.Desc
	Type prometheus.ValueType
}

// NodeLister is the part of the datastore the collectors read.
type NodeLister interface {
	ListNodes() []*resource.Node
}

func resourceState(r *resource.ExternalResource) string {
	switch {
	case r.GetLocked() != nil:
		return resourceStateLocked
	case r.GetReserved() != nil:
		return resourceStateReserved
	case !r.IsEnabled():
		return resourceStateDisabled
	}
	return resourceStateAvailable
}
