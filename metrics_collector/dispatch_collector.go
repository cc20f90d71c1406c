package metricscollector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/longhorn/resource-dispatcher/types"
)

const (
	backendResultOK    = "ok"
	backendResultError = "error"
)

// DispatchCollector counts admission checks and resource manager calls. It is the
// observer of the dispatcher and of the resource managers.
type DispatchCollector struct {
	dispatchTotal     *prometheus.CounterVec
	backendCallsTotal *prometheus.CounterVec
}

func NewDispatchCollector() *DispatchCollector {
	return &DispatchCollector{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsName,
				Subsystem: subsystemDispatch,
				Name:      "total",
				Help:      "Number of admission checks by outcome",
			},
			[]string{resultLabel},
		),
		backendCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsName,
				Subsystem: subsystemBackend,
				Name:      "calls_total",
				Help:      "Number of resource manager calls by outcome",
			},
			[]string{managerLabel, operationLabel, resultLabel, kindLabel},
		),
	}
}

func (dc *DispatchCollector) ObserveDispatch(result string) {
	dc.dispatchTotal.WithLabelValues(result).Inc()
}

func (dc *DispatchCollector) ObserveBackendCall(manager, operation string, result *types.StashResult) {
	outcome, kind := backendResultOK, ""
	if !result.IsOK() {
		outcome = backendResultError
		if result != nil {
			kind = string(result.Kind)
		}
	}
	dc.backendCallsTotal.WithLabelValues(manager, operation, outcome, kind).Inc()
}

func (dc *DispatchCollector) Describe(ch chan<- *prometheus.Desc) {
	dc.dispatchTotal.Describe(ch)
	dc.backendCallsTotal.Describe(ch)
}

func (dc *DispatchCollector) Collect(ch chan<- prometheus.Metric) {
	dc.dispatchTotal.Collect(ch)
	dc.backendCallsTotal.Collect(ch)
}
