package metricscollector

import (
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/scheduler"
)

type baseCollector struct {
	logger logrus.FieldLogger
	nodes  NodeLister
	filter *scheduler.AvailabilityFilter
}

func newBaseCollector(name string, logger logrus.FieldLogger, nodes NodeLister) *baseCollector {
	c := &baseCollector{
		logger: logger.WithField("collector", name),
		nodes:  nodes,
		filter: scheduler.NewAvailabilityFilter(),
	}
	return c
}
