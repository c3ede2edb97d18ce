package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry holding the beacon collectors.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	MustRegister(r)
	return r
}

// Handler serves r in Prometheus exposition format.
func Handler(r *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
