package metricscollector

import (
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/metrics_collector/registry"
)

// InitMetricsCollectorSystem registers the collectors and returns the dispatch collector,
// which has to be passed to the dispatcher and the resource manager factory as observer.
func InitMetricsCollectorSystem(logger logrus.FieldLogger, nodes NodeLister) *DispatchCollector {
	logger.Info("Initializing metrics collector system")

	nodeCollector := NewNodeCollector(logger, nodes)
	dispatchCollector := NewDispatchCollector()

	if err := registry.Register(nodeCollector); err != nil {
		logger.WithField("collector", subsystemNode).WithError(err).Warn("Failed to register collector")
	}
	if err := registry.Register(dispatchCollector); err != nil {
		logger.WithField("collector", subsystemDispatch).WithError(err).Warn("Failed to register collector")
	}
	return dispatchCollector
}
