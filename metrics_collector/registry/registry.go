package registry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dispatcherRegistry exposes the dispatcher metrics only, without the default
// Prometheus go-client metrics.
var dispatcherRegistry = prometheus.NewRegistry()

// Register registers the provided Collector with the dispatcherRegistry
func Register(collector prometheus.Collector) error {
	return dispatcherRegistry.Register(collector)
}

// Handler returns an http.Handler for dispatcherRegistry, using default HandlerOpts
func Handler() http.Handler {
	return promhttp.HandlerFor(dispatcherRegistry, promhttp.HandlerOpts{})
}
