package metricscollector

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type NodeCollector struct {
	*baseCollector

	totalNumberOfNodesMetric metricInfo
	resourceCountMetric      metricInfo
	resourceStateMetric      metricInfo
}

func NewNodeCollector(logger logrus.FieldLogger, nodes NodeLister) *NodeCollector {
	nc := &NodeCollector{
		baseCollector: newBaseCollector(subsystemNode, logger, nodes),
	}

	nc.totalNumberOfNodesMetric = metricInfo{
		Desc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsName, subsystemNode, "count_total"),
			"Total number of nodes",
			[]string{},
			nil,
		),
		Type: prometheus.GaugeValue,
	}

	nc.resourceCountMetric = metricInfo{
		Desc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsName, subsystemNode, "resources"),
			"Number of external resources on this node by state",
			[]string{nodeLabel, stateLabel},
			nil,
		),
		Type: prometheus.GaugeValue,
	}

	nc.resourceStateMetric = metricInfo{
		Desc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsName, "", "state"),
			"State of the external resource, 1 for the current state",
			[]string{nodeLabel, resourceLabel, stateLabel},
			nil,
		),
		Type: prometheus.GaugeValue,
	}

	return nc
}

func (nc *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nc.totalNumberOfNodesMetric.Desc
	ch <- nc.resourceCountMetric.Desc
	ch <- nc.resourceStateMetric.Desc
}

func (nc *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		nc.collectTotalNumberOfNodes(ch)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		nc.collectResourceState(ch)
	}()

	wg.Wait()
}

func (nc *NodeCollector) collectTotalNumberOfNodes(ch chan<- prometheus.Metric) {
	defer func() {
		if err := recover(); err != nil {
			nc.logger.WithField("error", err).Warn("panic during collecting metrics")
		}
	}()

	ch <- prometheus.MustNewConstMetric(nc.totalNumberOfNodesMetric.Desc, nc.totalNumberOfNodesMetric.Type, float64(len(nc.nodes.ListNodes())))
}

func (nc *NodeCollector) collectResourceState(ch chan<- prometheus.Metric) {
	defer func() {
		if err := recover(); err != nil {
			nc.logger.WithField("error", err).Warn("panic during collecting metrics")
		}
	}()

	for _, node := range nc.nodes.ListNodes() {
		counts := map[string]int{}
		for _, r := range nc.filter.ListResources(node) {
			current := resourceState(r)
			counts[current]++
			for _, state := range resourceStates {
				val := 0
				if state == current {
					val = 1
				}
				ch <- prometheus.MustNewConstMetric(nc.resourceStateMetric.Desc, nc.resourceStateMetric.Type, float64(val), node.Name, r.GetID(), state)
			}
		}
		for _, state := range resourceStates {
			ch <- prometheus.MustNewConstMetric(nc.resourceCountMetric.Desc, nc.resourceCountMetric.Type, float64(counts[state]), node.Name, state)
		}
	}
}
